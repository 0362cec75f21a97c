package agent

import (
	"errors"
	"fmt"
)

// ErrAccountNotLinked means the run has no refresh token to authorize with.
var ErrAccountNotLinked = errors.New("google account not linked")

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// ToolDispatchError is produced for a single invocation and is turned into its
// tool result. It never aborts the act step.
type ToolDispatchError struct {
	Tool string
	Err  error
}

func (e *ToolDispatchError) Error() string {
	return fmt.Sprintf("Error executing tool %s: %v", e.Tool, e.Err)
}

func (e *ToolDispatchError) Unwrap() error {
	return e.Err
}

// BusinessLogicFailure is a run that completed but did not achieve its goal.
type BusinessLogicFailure struct {
	Message string
}

func (e *BusinessLogicFailure) Error() string {
	return e.Message
}
