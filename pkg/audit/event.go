// Package audit records service activations and deactivations.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is one driver's part in an activation or deactivation request.
type Event struct {
	ID          string        `json:"id"`
	RequestID   string        `json:"request_id,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	User        string        `json:"user"`
	Device      string        `json:"device"`
	Operation   string        `json:"operation"`
	Service     string        `json:"service,omitempty"`
	Driver      string        `json:"driver,omitempty"`
	State       string        `json:"state,omitempty"`
	Changes     []string      `json:"changes,omitempty"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	RolledBack  bool          `json:"rolled_back,omitempty"`
	ExecuteMode bool          `json:"execute_mode"` // true if -x was used
	DryRun      bool          `json:"dry_run"`
	Duration    time.Duration `json:"duration"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	User        string
	Operation   string
	Service     string
	RequestID   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, device, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: operation,
	}
}

// WithRequest ties the event to the request it belongs to.
func (e *Event) WithRequest(id string) *Event {
	e.RequestID = id
	return e
}

// WithService sets the service ID
func (e *Event) WithService(service string) *Event {
	e.Service = service
	return e
}

// WithDriver sets the driver name and its final lifecycle state.
func (e *Event) WithDriver(name, state string) *Event {
	e.Driver = name
	e.State = state
	e.RolledBack = state == "ROLLED_BACK"
	return e
}

// WithChanges sets the rendered changes
func (e *Event) WithChanges(changes []string) *Event {
	e.Changes = changes
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithExecuteMode marks if execute mode was used
func (e *Event) WithExecuteMode(execute bool) *Event {
	e.ExecuteMode = execute
	e.DryRun = !execute
	return e
}
