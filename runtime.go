package taskgate

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/taskgate/taskgate/internal/clock"
	"github.com/taskgate/taskgate/model"
	"github.com/taskgate/taskgate/service/analytics"
	"github.com/taskgate/taskgate/service/approval"
	"github.com/taskgate/taskgate/service/classifier"
	"github.com/taskgate/taskgate/service/controller"
	"github.com/taskgate/taskgate/service/dispatch"
	"github.com/taskgate/taskgate/service/messaging"
	"github.com/taskgate/taskgate/service/planner"
	"github.com/taskgate/taskgate/service/store"
	"github.com/taskgate/taskgate/tracing"
)

// maxBackoffFactor caps the delay growth after consecutive failed sweeps.
const maxBackoffFactor = 8

// Counts is the read-only view exposed to dashboard/report collaborators.
type Counts struct {
	Pending          int `json:"pending"`
	ActivePlans      int `json:"activePlans"`
	AwaitingApproval int `json:"awaitingApproval"`
	CompletedToday   int `json:"completedToday"`
}

// Runtime drives the engine: a fixed-order sweep over all partitions on a
// poll cadence. One sweep always runs to completion; shutdown only prevents
// the next one.
type Runtime struct {
	store        store.Service
	classifier   *classifier.Classifier
	planner      *planner.Service
	gate         *approval.Service
	controller   *controller.Service
	dispatcher   dispatch.Service
	analytics    *analytics.Service
	events       messaging.Queue[approval.Event]
	pollInterval time.Duration

	cancelListen context.CancelFunc
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// Start rebuilds derived state from the partitions, then begins the event
// listener and the sweep loop.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.Rebuild(ctx); err != nil {
		return err
	}
	listenCtx, cancel := context.WithCancel(ctx)
	r.cancelListen = cancel
	go r.analytics.Listen(listenCtx, r.events)
	go r.run(ctx)
	return nil
}

// Shutdown stops the sweep loop and the event listener.
func (r *Runtime) Shutdown() {
	r.shutdownOnce.Do(func() {
		close(r.shutdownCh)
		if r.cancelListen != nil {
			r.cancelListen()
		}
		r.controller.Shutdown()
	})
}

func (r *Runtime) run(ctx context.Context) {
	delay := r.pollInterval
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdownCh:
			return
		case <-timer.C:
			if err := r.Sweep(ctx); err != nil {
				log.Printf("runtime: sweep aborted: %v", err)
				delay *= 2
				if max := maxBackoffFactor * r.pollInterval; delay > max {
					delay = max
				}
			} else {
				delay = r.pollInterval
			}
			timer.Reset(delay)
		}
	}
}

// Sweep runs one full pass: expire pending requests, act on decisions,
// ingest new tasks, finalize plans and persist analytics. Store-level
// failures abort the sweep; per-record failures are logged and skipped.
func (r *Runtime) Sweep(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "runtime.sweep", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	if err = r.gate.ExpireCheck(ctx); err != nil {
		return err
	}
	if err = r.sweepApproved(ctx); err != nil {
		return err
	}
	if err = r.sweepRejected(ctx); err != nil {
		return err
	}
	if err = r.sweepInbox(ctx); err != nil {
		return err
	}
	if err = r.finalizePlans(ctx); err != nil {
		return err
	}
	if pErr := r.analytics.Persist(ctx); pErr != nil {
		log.Printf("runtime: failed to persist analytics: %v", pErr)
	}
	return nil
}

func (r *Runtime) sweepApproved(ctx context.Context) error {
	resolutions, err := r.gate.ApprovalSweep(ctx)
	if err != nil {
		return err
	}
	for _, resolution := range resolutions {
		r.resolve(ctx, resolution.TaskID)
	}
	return nil
}

func (r *Runtime) sweepRejected(ctx context.Context) error {
	resolutions, err := r.gate.RejectionSweep(ctx)
	if err != nil {
		return err
	}
	for _, resolution := range resolutions {
		r.resolve(ctx, resolution.TaskID)
	}
	return nil
}

// resolve frees the task's slot for good and advances any admitted waiters.
func (r *Runtime) resolve(ctx context.Context, taskID string) {
	r.controller.MarkProcessed(taskID)
	for _, waiter := range r.controller.Release(taskID) {
		r.processWaiter(ctx, waiter.ID)
	}
}

func (r *Runtime) processWaiter(ctx context.Context, id string) {
	ref := store.Ref{Partition: store.PartitionNeedsAction, Name: id}
	record, err := r.store.Read(ctx, ref)
	if err != nil {
		log.Printf("runtime: waiter %v vanished: %v", id, err)
		r.resolve(ctx, id)
		return
	}
	r.advance(ctx, ref, record, store.TaskFromRecord(ref, record))
}

type arrival struct {
	ref    store.Ref
	record *store.Record
	task   *model.Task
}

// sweepInbox classifies new tasks, then admits high-priority arrivals ahead
// of normal ones regardless of listing order. Tasks beyond the concurrency
// bound stay queued in the controller and in the inbox partition; they are
// never silently dropped.
func (r *Runtime) sweepInbox(ctx context.Context) error {
	refs, err := r.store.List(ctx, store.PartitionNeedsAction)
	if err != nil {
		return err
	}
	var high, normal []arrival
	for _, ref := range refs {
		if r.controller.Processed(ref.Name) {
			continue
		}
		record, err := r.store.Read(ctx, ref)
		if err != nil {
			log.Printf("runtime: skipping unreadable task %v: %v", ref.Name, err)
			continue
		}
		task := store.TaskFromRecord(ref, record)
		if record.Header.String(store.KeyPriority) == "" {
			// Priority is derived once at ingestion and recorded so any
			// process sees the same classification.
			task.Priority = r.classifier.Classify(record.Body)
			record.Header[store.KeyPriority] = string(task.Priority)
			if uErr := r.store.Update(ctx, ref, record); uErr != nil {
				log.Printf("runtime: failed to record priority for %v: %v", ref.Name, uErr)
			}
		}
		if task.Priority == model.PriorityHigh {
			high = append(high, arrival{ref: ref, record: record, task: task})
		} else {
			normal = append(normal, arrival{ref: ref, record: record, task: task})
		}
	}
	for _, entry := range append(high, normal...) {
		if r.controller.Admit(entry.ref.Name, entry.task.Priority) == controller.Admitted {
			r.advance(ctx, entry.ref, entry.record, entry.task)
		}
	}
	return nil
}

// advance moves an admitted task forward: ensure its plan, then either open
// an approval request (holding the slot until the decision) or execute and
// archive directly.
func (r *Runtime) advance(ctx context.Context, ref store.Ref, record *store.Record, task *model.Task) {
	plan, err := r.ensurePlan(ctx, ref)
	if err != nil {
		log.Printf("runtime: failed to plan task %v: %v", ref.Name, err)
		// Free the slot without marking processed so the next sweep retries.
		for _, waiter := range r.controller.Release(ref.Name) {
			r.processWaiter(ctx, waiter.ID)
		}
		return
	}

	if plan.RequiresApproval {
		if _, err := r.gate.RequestApproval(ctx, task); err != nil && !errors.Is(err, store.ErrConflict) {
			log.Printf("runtime: failed to request approval for %v: %v", ref.Name, err)
			for _, waiter := range r.controller.Release(ref.Name) {
				r.processWaiter(ctx, waiter.ID)
			}
		}
		return
	}

	outcome := r.dispatcher.Execute(ctx, task)
	r.archive(ctx, ref, record, outcome)
	r.resolve(ctx, ref.Name)
}

func (r *Runtime) ensurePlan(ctx context.Context, taskRef store.Ref) (*model.Plan, error) {
	plan, _, err := r.planner.CreatePlan(ctx, taskRef)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, err
	}
	planRef := store.Ref{Partition: store.PartitionPlans, Name: "PLAN_" + taskRef.Name}
	return r.planner.LoadPlan(ctx, planRef)
}

func (r *Runtime) archive(ctx context.Context, ref store.Ref, record *store.Record, outcome dispatch.Outcome) {
	record.Header[store.KeyStatus] = string(model.StateExecuted)
	result := "succeeded"
	if !outcome.Success {
		result = "failed"
		record.Header[store.KeyReason] = outcome.Reason
	}
	record.Header[store.KeyOutcome] = result
	record.Header.SetTime(store.KeyArchived, clock.Now())
	if err := r.store.Update(ctx, ref, record); err != nil {
		log.Printf("runtime: failed to annotate task %v: %v", ref.Name, err)
		return
	}
	if _, err := r.store.Move(ctx, ref, store.PartitionDone); err != nil {
		log.Printf("runtime: failed to archive task %v: %v", ref.Name, err)
	}
}

// finalizePlans closes plan records whose task reached the terminal
// partition: executed tasks complete the remaining checklist, skipped ones
// close the plan as-is.
func (r *Runtime) finalizePlans(ctx context.Context) error {
	refs, err := r.store.List(ctx, store.PartitionPlans)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		record, err := r.store.Read(ctx, ref)
		if err != nil {
			log.Printf("runtime: skipping unreadable plan %v: %v", ref.Name, err)
			continue
		}
		status := record.Header.String(store.KeyStatus)
		if status == "completed" || status == "closed" {
			continue
		}
		taskID := record.Header.String(store.KeyTaskID)
		if taskID == "" {
			continue
		}
		taskRecord, err := r.store.Read(ctx, store.Ref{Partition: store.PartitionDone, Name: taskID})
		if err != nil {
			// Task still in flight.
			continue
		}
		if taskRecord.Header.String(store.KeyOutcome) == "succeeded" {
			plan, err := r.planner.LoadPlan(ctx, ref)
			if err != nil {
				log.Printf("runtime: skipping malformed plan %v: %v", ref.Name, err)
				continue
			}
			for _, step := range plan.Steps {
				plan.Complete(step.Name)
			}
			if err := r.planner.UpdatePlan(ctx, ref, plan); err != nil {
				log.Printf("runtime: failed to finalize plan %v: %v", ref.Name, err)
			}
			continue
		}
		record.Header[store.KeyStatus] = "closed"
		if err := r.store.Update(ctx, ref, record); err != nil {
			log.Printf("runtime: failed to close plan %v: %v", ref.Name, err)
		}
	}
	return nil
}

// Rebuild reconstructs all derived state (controller processed set,
// analytics snapshot) from the durable partitions after a restart.
func (r *Runtime) Rebuild(ctx context.Context) error {
	refs, err := r.store.List(ctx, store.PartitionDone)
	if err != nil {
		return err
	}
	var processed []string
	for _, ref := range refs {
		record, err := r.store.Read(ctx, ref)
		if err != nil {
			continue
		}
		switch record.Header.String(store.KeyType) {
		case "approval_request", "plan":
		default:
			processed = append(processed, ref.Name)
		}
	}
	r.controller.Rebuild(processed)
	return r.analytics.Rebuild(ctx)
}

// Counts assembles the read-only dashboard counters.
func (r *Runtime) Counts(ctx context.Context) (*Counts, error) {
	ret := &Counts{}
	pending, err := r.store.List(ctx, store.PartitionNeedsAction)
	if err != nil {
		return nil, err
	}
	ret.Pending = len(pending)

	awaiting, err := r.store.List(ctx, store.PartitionPendingApproval)
	if err != nil {
		return nil, err
	}
	ret.AwaitingApproval = len(awaiting)

	plans, err := r.store.List(ctx, store.PartitionPlans)
	if err != nil {
		return nil, err
	}
	for _, ref := range plans {
		record, err := r.store.Read(ctx, ref)
		if err != nil {
			continue
		}
		if status := record.Header.String(store.KeyStatus); status != "completed" && status != "closed" {
			ret.ActivePlans++
		}
	}

	done, err := r.store.List(ctx, store.PartitionDone)
	if err != nil {
		return nil, err
	}
	today := clock.Now()
	for _, ref := range done {
		record, err := r.store.Read(ctx, ref)
		if err != nil {
			continue
		}
		switch record.Header.String(store.KeyType) {
		case "approval_request", "plan":
			continue
		}
		archived, err := record.Header.Time(store.KeyArchived)
		if err != nil {
			continue
		}
		if sameDay(archived, today) {
			ret.CompletedToday++
		}
	}
	return ret, nil
}

// Completion is one archived task in the recent-completions view.
type Completion struct {
	Name       string    `json:"name"`
	Outcome    string    `json:"outcome"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// Recent lists the most recently archived tasks, newest first. A limit of
// zero or less falls back to five entries.
func (r *Runtime) Recent(ctx context.Context, limit int) ([]Completion, error) {
	if limit <= 0 {
		limit = 5
	}
	refs, err := r.store.List(ctx, store.PartitionDone)
	if err != nil {
		return nil, err
	}
	var completions []Completion
	for _, ref := range refs {
		record, err := r.store.Read(ctx, ref)
		if err != nil {
			continue
		}
		switch record.Header.String(store.KeyType) {
		case "approval_request", "plan":
			continue
		}
		archived, err := record.Header.Time(store.KeyArchived)
		if err != nil {
			continue
		}
		completions = append(completions, Completion{
			Name:       ref.Name,
			Outcome:    record.Header.String(store.KeyOutcome),
			ArchivedAt: archived,
		})
	}
	sort.Slice(completions, func(i, j int) bool {
		return completions[i].ArchivedAt.After(completions[j].ArchivedAt)
	})
	if len(completions) > limit {
		completions = completions[:limit]
	}
	return completions, nil
}

// Snapshot returns the current analytics aggregate.
func (r *Runtime) Snapshot() *analytics.Snapshot {
	return r.analytics.Snapshot()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
