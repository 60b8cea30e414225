package model

import "time"

// Priority classifies how urgently a task should be handled. It is derived
// once at ingestion and never changes afterwards.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// State represents a task lifecycle state. Transitions are monotonic - no
// state is revisited except Rejected/Expired which still archive.
type State string

const (
	StateIngested         State = "ingested"
	StatePlanned          State = "planned"
	StateAwaitingApproval State = "awaitingApproval"
	StateApproved         State = "approved"
	StateRejected         State = "rejected"
	StateExpired          State = "expired"
	StateExecuted         State = "executed"
	StateArchived         State = "archived"
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateArchived
}

// Task represents one unit of inbound work requiring eventual execution or
// rejection. The durable record in the store is authoritative; a Task value
// is a point-in-time view assembled from that record.
type Task struct {
	ID        string                 `json:"id" yaml:"id"`
	Type      string                 `json:"type" yaml:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty" yaml:"payload,omitempty"`
	Body      string                 `json:"body,omitempty" yaml:"body,omitempty"`
	Priority  Priority               `json:"priority" yaml:"priority"`
	State     State                  `json:"state" yaml:"state"`
	CreatedAt time.Time              `json:"createdAt" yaml:"created"`
}
