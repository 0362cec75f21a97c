package agent

import (
	"fmt"
	"strings"

	"github.com/elliotchance/pie/v2"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var failureKeywords = []string{"error", "failed", "unable to", "could not", "unexpected"}

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Interpret classifies a finished run. A structured outcome wins over the
// keyword match on the final text.
func Interpret(state *State) (*Response, error) {
	if state.Outcome != nil {
		if state.Outcome.Status == OutcomeSuccess {
			return &Response{Status: StatusSuccess, Message: state.Outcome.Message}, nil
		}
		return nil, &BusinessLogicFailure{Message: state.Outcome.Message}
	}

	if state.Truncated {
		return nil, &BusinessLogicFailure{
			Message: fmt.Sprintf("Agent stopped after %d steps without finishing the task.", state.Iterations),
		}
	}

	if strings.TrimSpace(state.Result) == "" {
		return nil, &BusinessLogicFailure{Message: "Agent finished without a final answer."}
	}

	lower := strings.ToLower(state.Result)
	idx := pie.FindFirstUsing(failureKeywords, func(keyword string) bool {
		return strings.Contains(lower, keyword)
	})
	if idx >= 0 {
		return nil, &BusinessLogicFailure{Message: state.Result}
	}

	return &Response{Status: StatusSuccess, Message: state.Result}, nil
}
