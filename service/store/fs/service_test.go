package fs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"

	"github.com/taskgate/taskgate/service/store"
)

func newTestStore(t *testing.T) *Service {
	service, err := New(afs.New(), "mem://localhost/"+t.Name())
	assert.NoError(t, err)
	return service
}

func newRecord(body string) *store.Record {
	record := store.NewRecord()
	record.Header[store.KeyType] = "email"
	record.Body = body
	return record
}

func TestCreateAndRead(t *testing.T) {
	ctx := context.Background()
	service := newTestStore(t)

	ref, err := service.Create(ctx, store.PartitionNeedsAction, "EMAIL_20260831_100000_ab12", newRecord("hello"))
	assert.NoError(t, err)
	assert.Equal(t, store.PartitionNeedsAction, ref.Partition)

	record, err := service.Read(ctx, ref)
	assert.NoError(t, err)
	assert.Equal(t, "email", record.Header.String(store.KeyType))
	assert.Equal(t, "hello", record.Body)

	// Same name in the same partition is a genuine conflict.
	_, err = service.Create(ctx, store.PartitionNeedsAction, "EMAIL_20260831_100000_ab12", newRecord("dup"))
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	service := newTestStore(t)

	ref, err := service.Create(ctx, store.PartitionPendingApproval, "APPROVAL_X", newRecord("gate me"))
	assert.NoError(t, err)

	moved, err := service.Move(ctx, ref, store.PartitionApproved)
	assert.NoError(t, err)
	assert.Equal(t, store.PartitionApproved, moved.Partition)
	assert.Equal(t, ref.Name, moved.Name)

	// The record is visible in exactly one partition.
	_, err = service.Read(ctx, ref)
	assert.ErrorIs(t, err, store.ErrSourceUnavailable)
	_, err = service.Read(ctx, moved)
	assert.NoError(t, err)

	// Moving an absent record reports the source as unavailable.
	_, err = service.Move(ctx, ref, store.PartitionRejected)
	assert.ErrorIs(t, err, store.ErrSourceUnavailable)

	// A same-named record at the destination blocks the move.
	again, err := service.Create(ctx, store.PartitionPendingApproval, "APPROVAL_X", newRecord("second round"))
	assert.NoError(t, err)
	_, err = service.Move(ctx, again, store.PartitionApproved)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	service := newTestStore(t)

	names := []string{"EMAIL_20260831_100002_cc", "EMAIL_20260831_100000_aa", "EMAIL_20260831_100001_bb"}
	for _, name := range names {
		_, err := service.Create(ctx, store.PartitionNeedsAction, name, newRecord("x"))
		assert.NoError(t, err)
	}

	refs, err := service.List(ctx, store.PartitionNeedsAction)
	assert.NoError(t, err)
	assert.Len(t, refs, 3)
	// Name order equals arrival order under the timestamped naming scheme.
	assert.Equal(t, "EMAIL_20260831_100000_aa", refs[0].Name)
	assert.Equal(t, "EMAIL_20260831_100002_cc", refs[2].Name)

	empty, err := service.List(ctx, store.PartitionDone)
	assert.NoError(t, err)
	assert.Len(t, empty, 0)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	service := newTestStore(t)

	ref, err := service.Create(ctx, store.PartitionNeedsAction, "EMAIL_1", newRecord("v1"))
	assert.NoError(t, err)

	record, err := service.Read(ctx, ref)
	assert.NoError(t, err)
	record.Header[store.KeyStatus] = "executed"
	record.Body = "v2"
	assert.NoError(t, service.Update(ctx, ref, record))

	updated, err := service.Read(ctx, ref)
	assert.NoError(t, err)
	assert.Equal(t, "executed", updated.Header.String(store.KeyStatus))
	assert.Equal(t, "v2", updated.Body)

	err = service.Update(ctx, store.Ref{Partition: store.PartitionDone, Name: "missing"}, record)
	assert.ErrorIs(t, err, store.ErrSourceUnavailable)
}

func TestNewValidation(t *testing.T) {
	_, err := New(afs.New(), "")
	assert.Error(t, err)
}
