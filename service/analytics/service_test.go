package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"

	"github.com/taskgate/taskgate/service/approval"
	"github.com/taskgate/taskgate/service/store"
	sfs "github.com/taskgate/taskgate/service/store/fs"
)

func newTestService(t *testing.T) (*Service, store.Service) {
	fs := afs.New()
	baseURL := "mem://localhost/" + t.Name()
	recordStore, err := sfs.New(fs, baseURL)
	assert.NoError(t, err)
	return New(recordStore, fs, baseURL+"/analytics.json"), recordStore
}

func requestEvent(action string) *approval.Event {
	return &approval.Event{
		Topic:   approval.TopicRequestCreated,
		Request: &approval.Request{ID: "APPROVAL_" + action, TaskID: action, Action: action},
	}
}

func decisionEvent(status approval.Status, approved bool, reason string, latency float64) *approval.Event {
	return &approval.Event{
		Topic:          approval.TopicDecisionCreated,
		Request:        &approval.Request{ID: "r", TaskID: "t", Action: "email", Status: status},
		Decision:       &approval.Decision{ID: "r", Approved: approved, Reason: reason},
		LatencySeconds: latency,
	}
}

func TestRecord(t *testing.T) {
	service, _ := newTestService(t)

	service.Record(requestEvent("email"))
	service.Record(requestEvent("email"))
	service.Record(requestEvent("payment"))
	service.Record(requestEvent("social_post"))

	service.Record(decisionEvent(approval.StatusApproved, true, "", 60))
	service.Record(decisionEvent(approval.StatusApproved, true, "", 120))
	service.Record(decisionEvent(approval.StatusRejected, false, "too risky", 0))

	snapshot := service.Snapshot()
	assert.Equal(t, 4, snapshot.TotalRequests)
	assert.Equal(t, 2, snapshot.ApprovedCount)
	assert.Equal(t, 1, snapshot.RejectedCount)
	assert.Equal(t, 0, snapshot.ExpiredCount)
	assert.InDelta(t, 2.0/3.0, snapshot.ApprovalRate, 1e-9)
	assert.InDelta(t, 90.0, snapshot.AverageResponseSeconds, 1e-9)
	assert.Equal(t, 2, snapshot.ActionTypes["email"])
	assert.Equal(t, 1, snapshot.ActionTypes["payment"])
	assert.Equal(t, 1, snapshot.RejectionReasons["too risky"])

	// Invariant: decided never exceeds total.
	decided := snapshot.ApprovedCount + snapshot.RejectedCount + snapshot.ExpiredCount
	assert.LessOrEqual(t, decided, snapshot.TotalRequests)
}

func TestRecordExpired(t *testing.T) {
	service, _ := newTestService(t)

	service.Record(requestEvent("payment"))
	// The expiry notification carries no counter change.
	service.Record(&approval.Event{Topic: approval.TopicRequestExpired, Request: &approval.Request{ID: "r", TaskID: "t"}})
	snapshot := service.Snapshot()
	assert.Equal(t, 0, snapshot.ExpiredCount)

	// The decision event counts it, once, into expired only.
	service.Record(decisionEvent(approval.StatusExpired, false, "expired", 0))
	snapshot = service.Snapshot()
	assert.Equal(t, 1, snapshot.ExpiredCount)
	assert.Equal(t, 0, snapshot.RejectedCount)
	assert.Len(t, snapshot.RejectionReasons, 0)
}

func TestRecordDefaultReason(t *testing.T) {
	service, _ := newTestService(t)
	service.Record(requestEvent("email"))
	service.Record(decisionEvent(approval.StatusRejected, false, "", 0))
	snapshot := service.Snapshot()
	assert.Equal(t, 1, snapshot.RejectionReasons[approval.DefaultRejectionReason])
}

func TestRunningMean(t *testing.T) {
	service, _ := newTestService(t)
	latencies := []float64{10, 20, 60, 30}
	var sum float64
	for _, latency := range latencies {
		service.Record(requestEvent("email"))
		service.Record(decisionEvent(approval.StatusApproved, true, "", latency))
		sum += latency
	}
	snapshot := service.Snapshot()
	assert.InDelta(t, sum/float64(len(latencies)), snapshot.AverageResponseSeconds, 1e-9)
}

func TestPersistAndLoad(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	service.Record(requestEvent("email"))
	service.Record(decisionEvent(approval.StatusApproved, true, "", 45))
	assert.NoError(t, service.Persist(ctx))

	restored := New(service.store, service.fs, service.snapshotURL)
	assert.NoError(t, restored.Load(ctx))
	snapshot := restored.Snapshot()
	assert.Equal(t, 1, snapshot.TotalRequests)
	assert.Equal(t, 1, snapshot.ApprovedCount)
	assert.InDelta(t, 45.0, snapshot.AverageResponseSeconds, 1e-9)

	// Loading with no persisted snapshot leaves the zero state. The afs
	// mem:// namespace is process-global, so the fresh service needs its own
	// URL to avoid seeing the snapshot persisted above.
	freshFS := afs.New()
	freshURL := "mem://localhost/" + t.Name() + "_fresh"
	freshStore, err := sfs.New(freshFS, freshURL)
	assert.NoError(t, err)
	fresh := New(freshStore, freshFS, freshURL+"/analytics.json")
	assert.NoError(t, fresh.Load(ctx))
	assert.Equal(t, 0, fresh.Snapshot().TotalRequests)
}

func TestRebuild(t *testing.T) {
	service, recordStore := newTestService(t)
	ctx := context.Background()

	created := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	decided := created.Add(2 * time.Hour)

	// Archived task supplying the creation time for latency.
	task := store.NewRecord()
	task.Header[store.KeyType] = "email"
	task.Header.SetTime(store.KeyCreated, created)
	_, err := recordStore.Create(ctx, store.PartitionDone, "EMAIL_1", task)
	assert.NoError(t, err)

	// Archived approved request.
	approved := store.NewRecord()
	approved.Header[store.KeyType] = "approval_request"
	approved.Header[store.KeyAction] = "email"
	approved.Header[store.KeyTaskID] = "EMAIL_1"
	approved.Header[store.KeyStatus] = string(approval.StatusApproved)
	approved.Header.SetTime(store.KeyDecided, decided)
	_, err = recordStore.Create(ctx, store.PartitionDone, "APPROVAL_EMAIL_1", approved)
	assert.NoError(t, err)

	// Archived expired request.
	expired := store.NewRecord()
	expired.Header[store.KeyType] = "approval_request"
	expired.Header[store.KeyAction] = "payment"
	expired.Header[store.KeyTaskID] = "PAYMENT_1"
	expired.Header[store.KeyStatus] = string(approval.StatusExpired)
	expired.Header[store.KeyReason] = "expired"
	_, err = recordStore.Create(ctx, store.PartitionDone, "APPROVAL_PAYMENT_1", expired)
	assert.NoError(t, err)

	// A request still pending counts toward totals only.
	pending := store.NewRecord()
	pending.Header[store.KeyType] = "approval_request"
	pending.Header[store.KeyAction] = "social_post"
	pending.Header[store.KeyTaskID] = "SOCIAL_1"
	pending.Header[store.KeyStatus] = string(approval.StatusPending)
	_, err = recordStore.Create(ctx, store.PartitionPendingApproval, "APPROVAL_SOCIAL_1", pending)
	assert.NoError(t, err)

	assert.NoError(t, service.Rebuild(ctx))
	snapshot := service.Snapshot()
	assert.Equal(t, 3, snapshot.TotalRequests)
	assert.Equal(t, 1, snapshot.ApprovedCount)
	assert.Equal(t, 1, snapshot.ExpiredCount)
	assert.Equal(t, 0, snapshot.RejectedCount)
	assert.InDelta(t, 7200.0, snapshot.AverageResponseSeconds, 1e-9)
	assert.Equal(t, 1, snapshot.ActionTypes["email"])
	assert.Equal(t, 1, snapshot.ActionTypes["social_post"])
}
