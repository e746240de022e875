package session

import "time"

// State is the broker session state.
type State int

const (
	// Disconnected means no session is open.
	Disconnected State = iota

	// Connecting means an attempt is in progress.
	Connecting

	// Connected means the session is open and subscribed.
	Connected
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Result is the outcome of one AttemptConnect or Step call.
type Result struct {
	// State is the session state after the call.
	State State

	// RetryAfter is the delay before the next attempt. Zero when connected.
	RetryAfter time.Duration

	// Err is the attempt error, if any.
	Err error

	// Delivered is the number of inbound messages processed.
	Delivered int
}

// Status is a point-in-time snapshot of the manager.
type Status struct {
	State        string    `json:"state"`
	ClientID     string    `json:"client_id,omitempty"`
	CommandTopic string    `json:"command_topic"`
	AuditTopic   string    `json:"audit_topic"`
	ConnectedAt  time.Time `json:"connected_at,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
	Attempts     uint64    `json:"attempts"`
	Failures     uint64    `json:"failures"`
	Messages     uint64    `json:"messages"`
	Handled      uint64    `json:"handled"`
	AuditErrors  uint64    `json:"audit_errors"`
}
