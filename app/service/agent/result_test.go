package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		success bool
		message string
	}{
		{"plain success", State{Result: "Added 3 items to Groceries."}, true, "Added 3 items to Groceries."},
		{"error keyword", State{Result: "An Error occurred."}, false, "An Error occurred."},
		{"failed keyword", State{Result: "Append FAILED"}, false, "Append FAILED"},
		{"unable to", State{Result: "I was unable to find the sheet."}, false, "I was unable to find the sheet."},
		{"could not", State{Result: "Could not parse the receipt."}, false, "Could not parse the receipt."},
		{"unexpected", State{Result: "Unexpected layout."}, false, "Unexpected layout."},
		{"empty", State{Result: "  "}, false, "Agent finished without a final answer."},
		{"truncated", State{Truncated: true, Iterations: 10, Result: "fine"}, false, "Agent stopped after 10 steps without finishing the task."},
		{"outcome beats keywords", State{Result: "no error", Outcome: &Outcome{Status: OutcomeSuccess, Message: "no error"}}, true, "no error"},
		{"outcome failure", State{Result: "great", Outcome: &Outcome{Status: OutcomeFailure, Message: "great"}}, false, "great"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Interpret(&tt.state)

			if tt.success {
				require.NoError(t, err)
				assert.Equal(t, StatusSuccess, resp.Status)
				assert.Equal(t, tt.message, resp.Message)
				return
			}

			var failure *BusinessLogicFailure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tt.message, failure.Message)
		})
	}
}
