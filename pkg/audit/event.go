// Package audit provides audit logging for configuration changes.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event represents an auditable configuration change event
type Event struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	User        string        `json:"user"`
	Device      string        `json:"device"`
	Domain      string        `json:"domain"`
	Operation   string        `json:"operation"`
	Group       string        `json:"group,omitempty"`
	Commands    []string      `json:"commands"`
	Rejected    []string      `json:"rejected,omitempty"`
	Success     bool          `json:"success"`
	Verified    bool          `json:"verified"`
	Error       string        `json:"error,omitempty"`
	ExecuteMode bool          `json:"execute_mode"` // true if -x was used
	DryRun      bool          `json:"dry_run"`
	Duration    time.Duration `json:"duration"`
	SessionID   string        `json:"session_id,omitempty"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	User        string
	Domain      string
	Operation   string
	Group       string
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

// WithDomain sets the configuration domain (prefix-list, firewall, ...)
func (e *Event) WithDomain(domain string) *Event {
	e.Domain = domain
	return e
}

// WithGroup sets the group the change targets
func (e *Event) WithGroup(group string) *Event {
	e.Group = group
	return e
}

// WithCommands sets the commands sent to the device
func (e *Event) WithCommands(cmds []string) *Event {
	e.Commands = append([]string(nil), cmds...)
	return e
}

// WithRejected records candidate lines that failed validation
func (e *Event) WithRejected(lines []string) *Event {
	e.Rejected = append([]string(nil), lines...)
	return e
}

// WithSession sets the device session id
func (e *Event) WithSession(id string) *Event {
	e.SessionID = id
	return e
}

// WithSuccess marks the event as successful. verified reports whether the
// post-commit check confirmed the change.
func (e *Event) WithSuccess(verified bool) *Event {
	e.Success = true
	e.Verified = verified
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	e.Verified = false
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
