package protocol

import "github.com/dukex/triggers-frontend/pkg/models"

// CommandChannelCapacity is the number of requests that may queue on a trigger before senders block.
const CommandChannelCapacity = 5

// ResponseOK is the message of a successful mutating command.
const ResponseOK = "ok"

// Command is a control request understood by a running trigger.
// The set of commands is closed: GetStatus, AddWorkflows, RemoveWorkflows and Stop.
type Command interface {
	Name() string
	isCommand()
}

// GetStatus asks for a serialized status snapshot. It never mutates the trigger.
type GetStatus struct{}

// AddWorkflows replaces any equal targets and appends the given ones in order.
type AddWorkflows struct {
	Workflows []models.WorkflowTarget
}

// RemoveWorkflows removes the first occurrence of each given target.
type RemoveWorkflows struct {
	Workflows []models.WorkflowTarget
}

// Stop closes the broker connection and ends the trigger.
type Stop struct{}

func (GetStatus) Name() string       { return "get_status" }
func (AddWorkflows) Name() string    { return "add_workflows" }
func (RemoveWorkflows) Name() string { return "remove_workflows" }
func (Stop) Name() string            { return "stop" }

func (GetStatus) isCommand()       {}
func (AddWorkflows) isCommand()    {}
func (RemoveWorkflows) isCommand() {}
func (Stop) isCommand()            {}

// Response is written exactly once per Request.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Request pairs a command with the single-use slot its response is written to.
type Request struct {
	Command Command
	Reply   chan<- Response
}

// NewRequest creates a request whose reply slot never blocks the trigger.
func NewRequest(cmd Command) (Request, <-chan Response) {
	reply := make(chan Response, 1)

	return Request{Command: cmd, Reply: reply}, reply
}

// Respond writes the response for r. Calling it more than once is a bug.
func (r Request) Respond(success bool, message string) {
	r.Reply <- Response{Success: success, Message: message}
}
