package analytics

import (
	"time"
)

// Snapshot is the process-wide aggregate over the gate's lifecycle events.
// It is derived state, never authoritative: Rebuild reconstructs it from the
// durable partitions after a restart.
//
// Invariant: ApprovedCount + RejectedCount + ExpiredCount <= TotalRequests.
type Snapshot struct {
	TotalRequests          int            `json:"total_requests" yaml:"total_requests"`
	ApprovedCount          int            `json:"approved_count" yaml:"approved_count"`
	RejectedCount          int            `json:"rejected_count" yaml:"rejected_count"`
	ExpiredCount           int            `json:"expired_count" yaml:"expired_count"`
	ApprovalRate           float64        `json:"approval_rate" yaml:"approval_rate"`
	AverageResponseSeconds float64        `json:"average_response_seconds" yaml:"average_response_seconds"`
	ActionTypes            map[string]int `json:"action_types" yaml:"action_types"`
	RejectionReasons       map[string]int `json:"rejection_reasons" yaml:"rejection_reasons"`
	UpdatedAt              time.Time      `json:"updated_at" yaml:"updated_at"`
}

// NewSnapshot returns an empty snapshot with initialised histograms.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		ActionTypes:      map[string]int{},
		RejectionReasons: map[string]int{},
	}
}

// Clone returns a deep copy safe to hand to callers.
func (s *Snapshot) Clone() *Snapshot {
	ret := *s
	ret.ActionTypes = make(map[string]int, len(s.ActionTypes))
	for k, v := range s.ActionTypes {
		ret.ActionTypes[k] = v
	}
	ret.RejectionReasons = make(map[string]int, len(s.RejectionReasons))
	for k, v := range s.RejectionReasons {
		ret.RejectionReasons[k] = v
	}
	return &ret
}

// observeRequest accounts for a newly created approval request.
func (s *Snapshot) observeRequest(action string) {
	s.TotalRequests++
	if action != "" {
		s.ActionTypes[action]++
	}
	s.refresh()
}

// observeApproved accounts for an approved decision with its response
// latency (decision time minus the owning task's creation time). The mean
// is maintained incrementally: new = old + (x - old) / n.
func (s *Snapshot) observeApproved(latencySeconds float64) {
	s.ApprovedCount++
	n := float64(s.ApprovedCount)
	s.AverageResponseSeconds += (latencySeconds - s.AverageResponseSeconds) / n
	s.refresh()
}

// observeRejected accounts for a human rejection keyed by its reason.
func (s *Snapshot) observeRejected(reason string) {
	s.RejectedCount++
	s.RejectionReasons[reason]++
	s.refresh()
}

// observeExpired accounts for a TTL auto-rejection. Expired requests are
// counted here only, never into RejectedCount.
func (s *Snapshot) observeExpired() {
	s.ExpiredCount++
	s.refresh()
}

func (s *Snapshot) refresh() {
	decided := s.ApprovedCount + s.RejectedCount + s.ExpiredCount
	if decided > 0 {
		s.ApprovalRate = float64(s.ApprovedCount) / float64(decided)
	} else {
		s.ApprovalRate = 0
	}
}
