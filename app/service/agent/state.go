package agent

import (
	"log/slog"
	"slices"

	"github.com/tmc/langchaingo/llms"
)

type Node string

const (
	NodeDecide Node = "decide"
	NodeAct    Node = "act"
	NodeDone   Node = "done"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Outcome is the explicit terminal signal sent through finish_task.
type Outcome struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// State is owned by a single run. Messages only ever grow.
type State struct {
	Messages      []llms.MessageContent
	SpreadsheetID string
	WorksheetHint string
	RefreshToken  string

	Result     string
	Finished   bool
	Iterations int
	Outcome    *Outcome
	Truncated  bool
}

func NewState(spreadsheetID, worksheetHint, refreshToken string, seed llms.MessageContent) *State {
	return &State{
		Messages:      []llms.MessageContent{seed},
		SpreadsheetID: spreadsheetID,
		WorksheetHint: worksheetHint,
		RefreshToken:  refreshToken,
	}
}

func (s *State) Clone() *State {
	clone := *s
	clone.Messages = slices.Clone(s.Messages)
	if s.Outcome != nil {
		outcome := *s.Outcome
		clone.Outcome = &outcome
	}

	return &clone
}

func (s *State) append(msg llms.MessageContent) {
	s.Messages = append(s.Messages, msg)
}

func (s *State) last() (llms.MessageContent, bool) {
	if len(s.Messages) == 0 {
		return llms.MessageContent{}, false
	}

	return s.Messages[len(s.Messages)-1], true
}

// PendingCalls returns the tool invocations of the last turn when it is an AI turn.
func (s *State) PendingCalls() []llms.ToolCall {
	msg, ok := s.last()
	if !ok || msg.Role != llms.ChatMessageTypeAI {
		return nil
	}

	return toolCalls(msg)
}

// LogValue omits the refresh token and message bodies.
func (s *State) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("spreadsheet_id", s.SpreadsheetID),
		slog.String("worksheet_hint", s.WorksheetHint),
		slog.Bool("account_linked", s.RefreshToken != ""),
		slog.Int("messages", len(s.Messages)),
		slog.Int("iterations", s.Iterations),
		slog.Bool("finished", s.Finished),
		slog.Bool("truncated", s.Truncated),
	)
}

// route picks the next node from the last turn only.
func route(s *State) Node {
	if s.Finished {
		return NodeDone
	}

	msg, ok := s.last()
	if !ok {
		return NodeDecide
	}

	switch msg.Role {
	case llms.ChatMessageTypeAI:
		if len(toolCalls(msg)) == 0 {
			return NodeDone
		}
		return NodeAct
	default:
		return NodeDecide
	}
}

func toolCalls(msg llms.MessageContent) []llms.ToolCall {
	var result []llms.ToolCall
	for _, part := range msg.Parts {
		if call, ok := part.(llms.ToolCall); ok {
			result = append(result, call)
		}
	}

	return result
}

func textOf(msg llms.MessageContent) string {
	var text string
	for _, part := range msg.Parts {
		if t, ok := part.(llms.TextContent); ok {
			text += t.Text
		}
	}

	return text
}
