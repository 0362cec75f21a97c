package agent

import (
	"context"
	"log/slog"
	"receiptagent/app/client/gsheets"
	"receiptagent/app/client/llm"
	"receiptagent/app/config"
	"receiptagent/app/service/checkpoint"

	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

// Session is the authorized backend handle a tool writes through.
type Session interface {
	AppendRows(ctx context.Context, spreadsheetID, worksheet string, rows [][]string) (int, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, refreshToken string) (Session, error)
}

type AuthorizerFunc func(ctx context.Context, refreshToken string) (Session, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, refreshToken string) (Session, error) {
	return f(ctx, refreshToken)
}

type Saver interface {
	Put(runID string, seq int, node string, state *State)
}

type Options struct {
	MaxIterations     int
	ToolConcurrency   int
	StructuredOutcome bool
	Temperature       float64
}

type Orchestrator struct {
	model     llms.Model
	auth      Authorizer
	tools     *ToolSet
	saver     Saver
	callbacks callbacks.Handler
	opts      Options
}

func NewOrchestrator(model llms.Model, auth Authorizer, tools *ToolSet, saver Saver, opts Options) *Orchestrator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	if opts.ToolConcurrency <= 0 {
		opts.ToolConcurrency = 1
	}

	return &Orchestrator{
		model:     model,
		auth:      auth,
		tools:     tools,
		saver:     saver,
		callbacks: llm.LogCallbackHandler{},
		opts:      opts,
	}
}

func New(di *do.Injector) (*Orchestrator, error) {
	cfg := do.MustInvoke[*config.Config](di)
	sheetsClient := do.MustInvoke[*gsheets.Client](di)

	auth := AuthorizerFunc(func(ctx context.Context, refreshToken string) (Session, error) {
		session, err := sheetsClient.Authorize(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		return session, nil
	})

	return NewOrchestrator(
		do.MustInvoke[llms.Model](di),
		auth,
		DefaultToolSet(),
		do.MustInvoke[*checkpoint.MemorySaver[*State]](di),
		Options{
			MaxIterations:     cfg.Agent.MaxIterations,
			ToolConcurrency:   cfg.Agent.ToolConcurrency,
			StructuredOutcome: cfg.Agent.StructuredOutcome,
			Temperature:       cfg.LLM.Temperature,
		},
	), nil
}

func (o *Orchestrator) Tools() *ToolSet {
	return o.tools
}

func (o *Orchestrator) Authorizer() Authorizer {
	return o.auth
}

// Run drives the state through decide and act steps until it reaches done.
// Model transport errors abort the run; tool and authorization failures
// become tool results instead.
func (o *Orchestrator) Run(ctx context.Context, runID string, state *State) (*State, error) {
	logger := slog.With("run_id", runID)

	for seq := 0; ; seq++ {
		if err := ctx.Err(); err != nil {
			return state, oops.In("agent").With("run_id", runID).Wrapf(err, "run cancelled")
		}

		node := route(state)

		switch node {
		case NodeDecide:
			if err := o.decide(ctx, state); err != nil {
				return state, oops.In("agent").With("run_id", runID).With("iteration", state.Iterations).Wrap(err)
			}
		case NodeAct:
			o.act(ctx, logger, state)
		case NodeDone:
			o.finish(state)
		}

		o.checkpoint(runID, seq, node, state)

		if node == NodeDone {
			logger.Info("Agent run finished", "state", state)
			return state, nil
		}
	}
}

func (o *Orchestrator) checkpoint(runID string, seq int, node Node, state *State) {
	if o.saver == nil {
		return
	}

	o.saver.Put(runID, seq, string(node), state.Clone())
}

func (o *Orchestrator) decide(ctx context.Context, state *State) error {
	if state.Iterations >= o.opts.MaxIterations {
		slog.Warn("Agent iteration limit reached", "max_iterations", o.opts.MaxIterations)
		state.Truncated = true
		state.Finished = true
		return nil
	}

	state.Iterations++

	definitions := o.tools.Definitions()
	if o.opts.StructuredOutcome {
		definitions = append(definitions, finishTaskDefinition())
	}

	resp, err := o.model.GenerateContent(ctx, state.Messages,
		llms.WithTools(definitions),
		llms.WithTemperature(o.opts.Temperature),
	)
	if err != nil {
		return oops.Wrapf(err, "failed to generate content")
	}

	if len(resp.Choices) == 0 {
		return oops.Errorf("model returned no choices")
	}

	choice := resp.Choices[0]

	msg := llms.MessageContent{
		Role: llms.ChatMessageTypeAI,
	}
	if choice.Content != "" {
		msg.Parts = append(msg.Parts, llms.TextContent{Text: choice.Content})
	}
	for _, call := range choice.ToolCalls {
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		if call.Type == "" {
			call.Type = "function"
		}
		msg.Parts = append(msg.Parts, call)
	}

	state.append(msg)

	if o.opts.StructuredOutcome {
		o.tryFinish(state, toolCalls(msg))
	}

	return nil
}

// tryFinish ends the run when every invocation of the turn is finish_task and
// the first one carries valid arguments.
func (o *Orchestrator) tryFinish(state *State, calls []llms.ToolCall) {
	if len(calls) == 0 {
		return
	}

	for _, call := range calls {
		if callName(call) != FinishTaskToolName {
			return
		}
	}

	outcome, err := parseOutcome(callArguments(calls[0]))
	if err != nil {
		return
	}

	state.Outcome = outcome
	state.Result = outcome.Message
	state.Finished = true
}

func (o *Orchestrator) finish(state *State) {
	if state.Finished {
		return
	}

	if msg, ok := state.last(); ok && msg.Role == llms.ChatMessageTypeAI {
		state.Result = textOf(msg)
	}
	state.Finished = true
}

func callName(call llms.ToolCall) string {
	if call.FunctionCall == nil {
		return ""
	}

	return call.FunctionCall.Name
}

func callArguments(call llms.ToolCall) string {
	if call.FunctionCall == nil {
		return ""
	}

	return call.FunctionCall.Arguments
}
