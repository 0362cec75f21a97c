package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tmc/langchaingo/llms"
)

// stubModel replays scripted responses; the last one repeats when the script runs out.
type stubModel struct {
	mu        sync.Mutex
	responses []*llms.ContentResponse
	err       error
	calls     int
	seen      [][]llms.MessageContent
	options   []llms.CallOptions
}

func (m *stubModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}
	m.options = append(m.options, opts)
	m.seen = append(m.seen, append([]llms.MessageContent(nil), messages...))

	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("no scripted response")
	}

	idx := min(m.calls, len(m.responses)-1)
	m.calls++

	return m.responses[idx], nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type stubSession struct {
	appendRows func(ctx context.Context, spreadsheetID, worksheet string, rows [][]string) (int, error)
	calls      atomic.Int32
}

func (s *stubSession) AppendRows(ctx context.Context, spreadsheetID, worksheet string, rows [][]string) (int, error) {
	s.calls.Add(1)
	if s.appendRows != nil {
		return s.appendRows(ctx, spreadsheetID, worksheet, rows)
	}

	return len(rows), nil
}

type stubAuthorizer struct {
	session *stubSession
	err     error
	calls   atomic.Int32
}

func (a *stubAuthorizer) Authorize(_ context.Context, _ string) (Session, error) {
	a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}

	return a.session, nil
}

type memorySaver struct {
	mu    sync.Mutex
	nodes []string
	last  *State
}

func (s *memorySaver) Put(_ string, _ int, node string, state *State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = append(s.nodes, node)
	s.last = state
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

func toolResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{ToolCalls: calls}},
	}
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func seedState(refreshToken string) *State {
	return NewState("S", "", refreshToken, llms.TextParts(llms.ChatMessageTypeHuman, "process this receipt"))
}

func toolResults(state *State) []llms.ToolCallResponse {
	var result []llms.ToolCallResponse
	for _, msg := range state.Messages {
		if msg.Role != llms.ChatMessageTypeTool {
			continue
		}
		for _, part := range msg.Parts {
			if resp, ok := part.(llms.ToolCallResponse); ok {
				result = append(result, resp)
			}
		}
	}

	return result
}
