// Package approval owns the pending/approved/rejected/expired sub-lifecycle
// that gates execution of sensitive tasks. Decisions are expressed purely by
// record moves between partitions - by a human, another process, or the
// expiry sweep - so the gate never needs a side channel.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/taskgate/taskgate/internal/clock"
	"github.com/taskgate/taskgate/model"
	"github.com/taskgate/taskgate/service/dispatch"
	"github.com/taskgate/taskgate/service/messaging"
	"github.com/taskgate/taskgate/service/store"
)

// DefaultTTL is the time a request stays pending before auto-rejection.
const DefaultTTL = 24 * time.Hour

// Notifier alerts a human that a decision is needed. Implementations are
// best-effort; the gate swallows their failures.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Resolution reports one request the gate finalized during a sweep, so the
// caller can release concurrency slots and advance plans.
type Resolution struct {
	TaskID   string
	Status   Status
	Reason   string
	Executed bool
	Failed   bool
}

// Service is the approval gate.
type Service struct {
	store    store.Service
	executor dispatch.Service
	events   messaging.Queue[Event]
	notifier Notifier
	ttl      time.Duration
}

// Option customises the gate.
type Option func(*Service)

// WithTTL overrides the pending time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithNotifier attaches a best-effort notifier.
func WithNotifier(notifier Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// New creates an approval gate over the given store, executor and event
// queue.
func New(recordStore store.Service, executor dispatch.Service, events messaging.Queue[Event], options ...Option) *Service {
	ret := &Service{
		store:    recordStore,
		executor: executor,
		events:   events,
		ttl:      DefaultTTL,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Queue exposes the gate's event stream.
func (s *Service) Queue() messaging.Queue[Event] { return s.events }

// RequestApproval creates an approval request record for the task in the
// pending partition and returns the open request. At most one open request
// exists per task: a same-named record still in flight surfaces as
// ErrConflict and the caller treats the existing request as authoritative.
func (s *Service) RequestApproval(ctx context.Context, task *model.Task) (*Request, error) {
	now := clock.Now()
	request := &Request{
		ID:        "APPROVAL_" + task.ID,
		TaskID:    task.ID,
		Action:    task.Type,
		Priority:  task.Priority,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	record := store.NewRecord()
	record.Header[store.KeyType] = "approval_request"
	record.Header[store.KeyAction] = request.Action
	record.Header[store.KeyTaskID] = request.TaskID
	record.Header[store.KeyStatus] = string(StatusPending)
	record.Header[store.KeyPriority] = string(request.Priority)
	record.Header.SetTime(store.KeyCreated, request.CreatedAt)
	record.Header.SetTime(store.KeyExpires, request.ExpiresAt)
	record.Body = requestBody(task)

	if _, err := s.store.Create(ctx, store.PartitionPendingApproval, request.ID, record); err != nil {
		return nil, err
	}
	s.publish(ctx, &Event{Topic: TopicRequestCreated, Request: request})
	s.notify(ctx, fmt.Sprintf("New %v approval request: %v", request.Action, request.ID))
	return request, nil
}

// ListPending returns the currently open requests. Records with unreadable
// headers are skipped with a log line; they stay pending for the next sweep.
func (s *Service) ListPending(ctx context.Context) ([]*Request, error) {
	refs, err := s.store.List(ctx, store.PartitionPendingApproval)
	if err != nil {
		return nil, err
	}
	pending := make([]*Request, 0, len(refs))
	for _, ref := range refs {
		request, err := s.read(ctx, ref)
		if err != nil {
			log.Printf("approval: skipping %v: %v", ref.Name, err)
			continue
		}
		pending = append(pending, request)
	}
	return pending, nil
}

// Decide applies a programmatic decision to a pending request by moving its
// record, exactly as a human would. Reason annotates rejections.
func (s *Service) Decide(ctx context.Context, id string, approved bool, reason string) error {
	ref := store.Ref{Partition: store.PartitionPendingApproval, Name: id}
	if reason != "" {
		record, err := s.store.Read(ctx, ref)
		if err != nil {
			return err
		}
		record.Header[store.KeyReason] = reason
		if err := s.store.Update(ctx, ref, record); err != nil {
			return err
		}
	}
	destination := store.PartitionRejected
	if approved {
		destination = store.PartitionApproved
	}
	_, err := s.store.Move(ctx, ref, destination)
	return err
}

// ExpireCheck auto-rejects every pending request whose deadline has passed.
// It runs before decision sweeps so that expiry wins a race against a human
// decision landing in the same sweep. A request already moved is simply
// absent from this listing, which makes the check idempotent.
func (s *Service) ExpireCheck(ctx context.Context) error {
	refs, err := s.store.List(ctx, store.PartitionPendingApproval)
	if err != nil {
		return err
	}
	now := clock.Now()
	for _, ref := range refs {
		record, err := s.store.Read(ctx, ref)
		if err != nil {
			log.Printf("approval: expire-check cannot read %v: %v", ref.Name, err)
			continue
		}
		expiresAt, err := record.Header.Time(store.KeyExpires)
		if err != nil {
			// Malformed deadline: leave the record pending rather than guess.
			log.Printf("approval: %v has no parsable expiry: %v", ref.Name, err)
			continue
		}
		if now.Before(expiresAt) {
			continue
		}

		record.Header[store.KeyStatus] = string(StatusExpired)
		record.Header[store.KeyReason] = "expired"
		record.Header.SetTime(store.KeyDecided, now)
		record.Append("Auto-Rejected", fmt.Sprintf("Reason: request expired at %v\nAuto-rejected by the engine at %v",
			expiresAt.Format(time.RFC3339), now.Format(time.RFC3339)))
		if err := s.store.Update(ctx, ref, record); err != nil {
			log.Printf("approval: failed to annotate expired %v: %v", ref.Name, err)
			continue
		}
		if _, err := s.store.Move(ctx, ref, store.PartitionRejected); err != nil {
			if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrSourceUnavailable) {
				// Another actor moved it first; the next sweep sees the truth.
				log.Printf("approval: expire move skipped for %v: %v", ref.Name, err)
				continue
			}
			return err
		}
		log.Printf("approval: auto-rejected expired request %v", ref.Name)
		if request, rErr := requestFromRecord(ref.Name, record); rErr == nil {
			s.publish(ctx, &Event{Topic: TopicRequestExpired, Request: request})
		}
	}
	return nil
}

// ApprovalSweep executes every request observed in the approved partition
// exactly once and archives request and task. Execution failures still
// archive, flagged failed, so nothing retries forever.
func (s *Service) ApprovalSweep(ctx context.Context) ([]Resolution, error) {
	refs, err := s.store.List(ctx, store.PartitionApproved)
	if err != nil {
		return nil, err
	}
	var resolutions []Resolution
	for _, ref := range refs {
		resolution, err := s.finalizeApproved(ctx, ref)
		if err != nil {
			log.Printf("approval: failed to process approved %v: %v", ref.Name, err)
			continue
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions, nil
}

// RejectionSweep archives every request observed in the rejected partition
// together with its task (archived as skipped, never retried).
func (s *Service) RejectionSweep(ctx context.Context) ([]Resolution, error) {
	refs, err := s.store.List(ctx, store.PartitionRejected)
	if err != nil {
		return nil, err
	}
	var resolutions []Resolution
	for _, ref := range refs {
		resolution, err := s.finalizeRejected(ctx, ref)
		if err != nil {
			log.Printf("approval: failed to process rejected %v: %v", ref.Name, err)
			continue
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions, nil
}

func (s *Service) finalizeApproved(ctx context.Context, ref store.Ref) (Resolution, error) {
	record, err := s.store.Read(ctx, ref)
	if err != nil {
		return Resolution{}, err
	}
	request, err := requestFromRecord(ref.Name, record)
	if err != nil {
		return Resolution{}, err
	}
	now := clock.Now()
	decision := &Decision{ID: request.ID, Approved: true, DecidedAt: now}

	taskRef := store.Ref{Partition: store.PartitionNeedsAction, Name: request.TaskID}
	taskRecord, err := s.store.Read(ctx, taskRef)
	if err != nil {
		// The owning task vanished; archive the request so it cannot wedge
		// the approved partition, flagged failed.
		record.Header[store.KeyStatus] = string(StatusApproved)
		record.Header[store.KeyOutcome] = "failed"
		record.Header.SetTime(store.KeyDecided, now)
		record.Append("Execution Failed", err.Error())
		if uErr := s.store.Update(ctx, ref, record); uErr != nil {
			return Resolution{}, uErr
		}
		if _, mErr := s.store.Move(ctx, ref, store.PartitionDone); mErr != nil {
			return Resolution{}, mErr
		}
		s.publish(ctx, &Event{Topic: TopicDecisionCreated, Request: request, Decision: decision, Failed: true})
		return Resolution{TaskID: request.TaskID, Status: StatusApproved, Failed: true}, nil
	}
	task := store.TaskFromRecord(taskRef, taskRecord)

	outcome := s.executor.Execute(ctx, task)
	latency := now.Sub(task.CreatedAt).Seconds()

	record.Header[store.KeyStatus] = string(StatusApproved)
	record.Header.SetTime(store.KeyDecided, now)
	if outcome.Success {
		record.Header[store.KeyOutcome] = "succeeded"
	} else {
		record.Header[store.KeyOutcome] = "failed"
		record.Append("Execution Failed", outcome.Reason)
	}
	if err := s.store.Update(ctx, ref, record); err != nil {
		return Resolution{}, err
	}
	if _, err := s.store.Move(ctx, ref, store.PartitionDone); err != nil {
		return Resolution{}, err
	}
	archiveOutcome := "succeeded"
	if !outcome.Success {
		archiveOutcome = "failed"
	}
	if err := s.archiveTask(ctx, taskRef, taskRecord, model.StateExecuted, archiveOutcome); err != nil {
		log.Printf("approval: failed to archive task %v: %v", request.TaskID, err)
	}

	s.publish(ctx, &Event{
		Topic:          TopicDecisionCreated,
		Request:        request,
		Decision:       decision,
		LatencySeconds: latency,
		Failed:         !outcome.Success,
	})
	return Resolution{
		TaskID:   request.TaskID,
		Status:   StatusApproved,
		Executed: true,
		Failed:   !outcome.Success,
	}, nil
}

func (s *Service) finalizeRejected(ctx context.Context, ref store.Ref) (Resolution, error) {
	record, err := s.store.Read(ctx, ref)
	if err != nil {
		return Resolution{}, err
	}
	request, err := requestFromRecord(ref.Name, record)
	if err != nil {
		return Resolution{}, err
	}

	expired := request.Status == StatusExpired
	reason := record.Header.String(store.KeyReason)
	if reason == "" {
		reason = DefaultRejectionReason
	}
	now := clock.Now()
	if _, err := record.Header.Time(store.KeyDecided); err != nil {
		record.Header.SetTime(store.KeyDecided, now)
	}
	if !expired {
		record.Header[store.KeyStatus] = string(StatusRejected)
	}
	record.Header[store.KeyReason] = reason
	if err := s.store.Update(ctx, ref, record); err != nil {
		return Resolution{}, err
	}
	if _, err := s.store.Move(ctx, ref, store.PartitionDone); err != nil {
		return Resolution{}, err
	}

	// The rejected task archives as skipped; the dispatcher never sees it.
	taskRef := store.Ref{Partition: store.PartitionNeedsAction, Name: request.TaskID}
	if taskRecord, tErr := s.store.Read(ctx, taskRef); tErr == nil {
		state := model.StateRejected
		if expired {
			state = model.StateExpired
		}
		if aErr := s.archiveTask(ctx, taskRef, taskRecord, state, "skipped"); aErr != nil {
			log.Printf("approval: failed to archive task %v: %v", request.TaskID, aErr)
		}
	}

	status := StatusRejected
	if expired {
		status = StatusExpired
	}
	decision := &Decision{ID: request.ID, Approved: false, Reason: reason, DecidedAt: now}
	s.publish(ctx, &Event{Topic: TopicDecisionCreated, Request: request, Decision: decision})
	return Resolution{TaskID: request.TaskID, Status: status, Reason: reason}, nil
}

func (s *Service) archiveTask(ctx context.Context, taskRef store.Ref, record *store.Record, state model.State, outcome string) error {
	record.Header[store.KeyStatus] = string(state)
	record.Header[store.KeyOutcome] = outcome
	record.Header.SetTime(store.KeyArchived, clock.Now())
	if err := s.store.Update(ctx, taskRef, record); err != nil {
		return err
	}
	_, err := s.store.Move(ctx, taskRef, store.PartitionDone)
	return err
}

func (s *Service) read(ctx context.Context, ref store.Ref) (*Request, error) {
	record, err := s.store.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	return requestFromRecord(ref.Name, record)
}

func (s *Service) publish(ctx context.Context, event *Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Printf("approval: failed to publish %v event: %v", event.Topic, err)
	}
}

func (s *Service) notify(ctx context.Context, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, message)
}

func requestFromRecord(name string, record *store.Record) (*Request, error) {
	request := &Request{
		ID:       name,
		TaskID:   record.Header.String(store.KeyTaskID),
		Action:   record.Header.String(store.KeyAction),
		Priority: model.Priority(record.Header.String(store.KeyPriority)),
		Status:   Status(record.Header.String(store.KeyStatus)),
	}
	if request.TaskID == "" {
		return nil, fmt.Errorf("%w: request %v has no task_id", store.ErrMalformed, name)
	}
	if request.Status == "" {
		request.Status = StatusPending
	}
	if createdAt, err := record.Header.Time(store.KeyCreated); err == nil {
		request.CreatedAt = createdAt
	}
	if expiresAt, err := record.Header.Time(store.KeyExpires); err == nil {
		request.ExpiresAt = expiresAt
	}
	return request, nil
}

func requestBody(task *model.Task) string {
	return fmt.Sprintf(`## Action Details
%s

## Risks
None identified.

## To Approve
Move this record to the Approved partition.

## To Reject
Move this record to the Rejected partition.
`, task.Body)
}
