// Package analytics aggregates lifecycle events into running counters and
// derived rates, persisted as a JSON snapshot alongside the partitions.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/taskgate/taskgate/internal/clock"
	"github.com/taskgate/taskgate/service/approval"
	"github.com/taskgate/taskgate/service/messaging"
	"github.com/taskgate/taskgate/service/store"
)

const recordTypeApproval = "approval_request"

// Service maintains the analytics snapshot. All updates funnel through a
// single mutex so each event is applied transactionally.
type Service struct {
	mux         sync.Mutex
	snapshot    *Snapshot
	store       store.Service
	fs          afs.Service
	snapshotURL string
}

// New creates an analytics service persisting its snapshot at snapshotURL.
func New(storeService store.Service, fs afs.Service, snapshotURL string) *Service {
	return &Service{
		snapshot:    NewSnapshot(),
		store:       storeService,
		fs:          fs,
		snapshotURL: snapshotURL,
	}
}

// Snapshot returns a copy of the current aggregate state.
func (s *Service) Snapshot() *Snapshot {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.snapshot.Clone()
}

// Record applies a single gate event to the snapshot. Expiry is counted on
// the decision event (published exactly once, when the request is archived);
// the earlier request.expired notification carries no counter change.
func (s *Service) Record(event *approval.Event) {
	if event == nil {
		return
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	switch event.Topic {
	case approval.TopicRequestCreated:
		action := ""
		if event.Request != nil {
			action = event.Request.Action
		}
		s.snapshot.observeRequest(action)
	case approval.TopicDecisionCreated:
		s.applyDecision(event)
	}
	s.snapshot.UpdatedAt = clock.Now()
}

func (s *Service) applyDecision(event *approval.Event) {
	if event.Decision == nil {
		return
	}
	if event.Decision.Approved {
		s.snapshot.observeApproved(event.LatencySeconds)
		return
	}
	if event.Request != nil && event.Request.Status == approval.StatusExpired {
		s.snapshot.observeExpired()
		return
	}
	reason := event.Decision.Reason
	if reason == "" {
		reason = approval.DefaultRejectionReason
	}
	s.snapshot.observeRejected(reason)
}

// Listen consumes gate events until ctx is cancelled, persisting the
// snapshot after each applied event.
func (s *Service) Listen(ctx context.Context, queue messaging.Queue[approval.Event]) {
	for {
		message, err := queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("analytics: failed to consume event: %v", err)
			continue
		}
		s.Record(message.T())
		if err := s.Persist(ctx); err != nil {
			log.Printf("analytics: failed to persist snapshot: %v", err)
		}
		_ = message.Ack()
	}
}

// Persist writes the snapshot JSON to its configured URL.
func (s *Service) Persist(ctx context.Context) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return s.fs.Upload(ctx, s.snapshotURL, file.DefaultFileOsMode, bytes.NewReader(data))
}

// Load restores a previously persisted snapshot. A missing snapshot leaves
// the zero state in place.
func (s *Service) Load(ctx context.Context) error {
	ok, err := s.fs.Exists(ctx, s.snapshotURL)
	if err != nil || !ok {
		return err
	}
	data, err := s.fs.DownloadWithURL(ctx, s.snapshotURL)
	if err != nil {
		return err
	}
	snapshot := NewSnapshot()
	if err := json.Unmarshal(data, snapshot); err != nil {
		return err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.snapshot = snapshot
	return nil
}

// Rebuild reconstructs the snapshot from the durable partitions: requests
// still in flight contribute to the totals, archived requests replay their
// decisions. The event stream is therefore never a single point of truth.
func (s *Service) Rebuild(ctx context.Context) error {
	snapshot := NewSnapshot()

	// Open requests count toward totals only.
	for _, partition := range []string{store.PartitionPendingApproval, store.PartitionApproved, store.PartitionRejected} {
		refs, err := s.store.List(ctx, partition)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			record, err := s.store.Read(ctx, ref)
			if err != nil {
				log.Printf("analytics: skipping unreadable record %v: %v", ref.Name, err)
				continue
			}
			if record.Header.String(store.KeyType) != recordTypeApproval {
				continue
			}
			snapshot.observeRequest(record.Header.String(store.KeyAction))
		}
	}

	// Archived tasks supply creation times for latency; archived requests
	// replay their decisions.
	refs, err := s.store.List(ctx, store.PartitionDone)
	if err != nil {
		return err
	}
	taskCreated := map[string]float64{}
	var requests []*store.Record
	for _, ref := range refs {
		record, err := s.store.Read(ctx, ref)
		if err != nil {
			log.Printf("analytics: skipping unreadable record %v: %v", ref.Name, err)
			continue
		}
		if record.Header.String(store.KeyType) == recordTypeApproval {
			requests = append(requests, record)
			continue
		}
		if created, err := record.Header.Time(store.KeyCreated); err == nil {
			taskCreated[ref.Name] = float64(created.Unix())
		}
	}
	for _, record := range requests {
		snapshot.observeRequest(record.Header.String(store.KeyAction))
		status := approval.Status(strings.ToLower(record.Header.String(store.KeyStatus)))
		switch status {
		case approval.StatusApproved:
			latency := 0.0
			if decided, err := record.Header.Time(store.KeyDecided); err == nil {
				if created, ok := taskCreated[record.Header.String(store.KeyTaskID)]; ok {
					latency = float64(decided.Unix()) - created
				}
			}
			snapshot.observeApproved(latency)
		case approval.StatusExpired:
			snapshot.observeExpired()
		case approval.StatusRejected:
			reason := record.Header.String(store.KeyReason)
			if reason == "" {
				reason = approval.DefaultRejectionReason
			}
			snapshot.observeRejected(reason)
		}
	}
	snapshot.UpdatedAt = clock.Now()

	s.mux.Lock()
	s.snapshot = snapshot
	s.mux.Unlock()
	return nil
}
