package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/errgroup"
)

const (
	accountNotLinkedMessage = "Error: Google account not linked or token is missing. Please reconnect your Google account."
	authErrorFormat         = "Authentication error with Google Sheets: %v. Please ensure your Google account is properly linked and has access."
)

var errFinishTaskNotAlone = errors.New("finish_task must be called alone, after all other tool calls have completed")

// act answers every pending invocation with exactly one tool result. The
// results are appended in the order the invocations were emitted.
func (o *Orchestrator) act(ctx context.Context, logger *slog.Logger, state *State) {
	calls := state.PendingCalls()
	results := make([]string, len(calls))

	switch {
	case state.RefreshToken == "":
		logger.Warn("Google refresh token missing for tool execution", "tool_calls", len(calls))
		for i := range calls {
			results[i] = accountNotLinkedMessage
		}

	default:
		session, err := o.auth.Authorize(ctx, state.RefreshToken)
		if err != nil {
			logger.Error("Failed to authorize sheets session", "error", err)
			for i := range calls {
				results[i] = fmt.Sprintf(authErrorFormat, err)
			}
			break
		}

		env := Env{
			Session:       session,
			SpreadsheetID: state.SpreadsheetID,
		}

		var g errgroup.Group
		g.SetLimit(o.opts.ToolConcurrency)

		for i, call := range calls {
			g.Go(func() error {
				results[i] = o.dispatch(ctx, logger, env, call)
				return nil
			})
		}

		_ = g.Wait()
	}

	for i, call := range calls {
		state.append(llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{
				llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       callName(call),
					Content:    results[i],
				},
			},
		})
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, logger *slog.Logger, env Env, call llms.ToolCall) string {
	name := callName(call)
	args := callArguments(call)

	output, err := o.call(ctx, env, name, args)
	if err != nil {
		dispatchErr := &ToolDispatchError{Tool: name, Err: err}
		logger.Error("Error executing tool",
			"tool", name,
			"tool_call_id", call.ID,
			"error", err,
		)
		if o.callbacks != nil {
			o.callbacks.HandleToolError(ctx, dispatchErr)
		}
		return dispatchErr.Error()
	}

	return output
}

func (o *Orchestrator) call(ctx context.Context, env Env, name, args string) (string, error) {
	if name == FinishTaskToolName && o.opts.StructuredOutcome {
		if _, err := parseOutcome(args); err != nil {
			return "", err
		}
		return "", errFinishTaskNotAlone
	}

	tool, err := o.tools.Bind(name, env)
	if err != nil {
		return "", err
	}

	if o.callbacks != nil {
		o.callbacks.HandleToolStart(ctx, args)
	}

	output, err := tool.Call(ctx, args)
	if err != nil {
		return "", err
	}

	if o.callbacks != nil {
		o.callbacks.HandleToolEnd(ctx, output)
	}

	return output, nil
}
