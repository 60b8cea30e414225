package approval

import (
	"time"

	"github.com/taskgate/taskgate/model"
)

// Status of an approval request. pending is the only non-terminal status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Standard event topics.
const (
	TopicRequestCreated  = "request.created"
	TopicRequestExpired  = "request.expired"
	TopicDecisionCreated = "decision.created"
)

// DefaultRejectionReason is recorded when the human supplies none.
const DefaultRejectionReason = "Not specified"

// Request gates execution of a task pending a human (or timeout) decision.
// At most one open request exists per task at any time.
type Request struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"taskId"`
	Action    string         `json:"action"` // task type tag, e.g. payment
	Priority  model.Priority `json:"priority"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// Decision records how a request left pending.
type Decision struct {
	ID        string    `json:"id"` // same as request.ID
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Event is the envelope published on every gate transition. Analytics and
// any external observer consume these instead of polling partitions.
type Event struct {
	Topic    string    `json:"topic"`
	Request  *Request  `json:"request,omitempty"`
	Decision *Decision `json:"decision,omitempty"`

	// LatencySeconds is decision time minus the owning task's creation time,
	// populated for approved decisions only.
	LatencySeconds float64 `json:"latencySeconds,omitempty"`

	// Failed flags an approved request whose execution handler reported
	// failure; the record is archived regardless.
	Failed bool `json:"failed,omitempty"`
}
