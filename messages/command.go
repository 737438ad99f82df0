package messages

import (
	"github.com/google/uuid"
)

// CommandResult is the reply to a single command execution. Exactly one of
// Value and Err is populated, according to Success.
type CommandResult struct {
	CommandID uuid.UUID `json:"command_id"`
	SessionID SessionID `json:"session_id,omitempty"`
	Success   bool      `json:"success"`
	Value     any       `json:"value,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// Succeed builds the result for a command whose handler returned value.
func Succeed(cmd Command, value any) CommandResult {
	return CommandResult{
		CommandID: cmd.ID(),
		SessionID: cmd.Session(),
		Success:   true,
		Value:     value,
	}
}

// Fail builds the result for a command whose handler failed or could not be
// routed.
func Fail(cmd Command, err error) CommandResult {
	res := CommandResult{
		SessionID: Global,
		Success:   false,
	}
	if cmd != nil {
		res.CommandID = cmd.ID()
		res.SessionID = cmd.Session()
	}
	if err != nil {
		res.Err = err.Error()
	}
	return res
}
