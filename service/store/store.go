package store

import (
	"context"
	"errors"
)

// Standard partition names. Each partition is a named durable collection that
// represents one lifecycle state; a record lives in exactly one partition at
// any observable instant.
const (
	PartitionNeedsAction     = "Needs_Action"
	PartitionPlans           = "Plans"
	PartitionPendingApproval = "Pending_Approval"
	PartitionApproved        = "Approved"
	PartitionRejected        = "Rejected"
	PartitionDone            = "Done"
)

// Partitions lists every partition the engine operates on, in no particular
// order. Implementations ensure all of them exist on startup.
var Partitions = []string{
	PartitionNeedsAction,
	PartitionPlans,
	PartitionPendingApproval,
	PartitionApproved,
	PartitionRejected,
	PartitionDone,
}

// Common, reusable store errors. Sentinel variables allow callers to detect
// error conditions via errors.Is instead of brittle string comparisons.
var (
	// ErrSourceUnavailable is returned when a record is unreadable or missing
	// when expected.
	ErrSourceUnavailable = errors.New("store: source unavailable")

	// ErrConflict indicates that the destination partition already holds a
	// same-named record.
	ErrConflict = errors.New("store: conflict")

	// ErrMalformed indicates a record whose header is missing or cannot be
	// parsed.
	ErrMalformed = errors.New("store: malformed record")
)

// Ref identifies a record by its partition membership and name.
type Ref struct {
	Partition string
	Name      string
}

// Service is the durable record store contract. Move must be atomic with
// respect to concurrent scans of both partitions: after a successful Move the
// record is visible in the destination listing and absent from the source
// listing, with no window in which it appears in both or neither.
type Service interface {
	// Create persists a new record under the given partition and name.
	Create(ctx context.Context, partition, name string, record *Record) (Ref, error)

	// Move relocates a record to another partition, keeping its name. It
	// fails with ErrConflict when the destination already holds a same-named
	// record and with ErrSourceUnavailable when the source is gone.
	Move(ctx context.Context, ref Ref, toPartition string) (Ref, error)

	// List enumerates the records currently present in a partition, ordered
	// by name. The listing is re-enumerated on every call, never cached.
	List(ctx context.Context, partition string) ([]Ref, error)

	// Read loads and decodes a record.
	Read(ctx context.Context, ref Ref) (*Record, error)

	// Update overwrites a record in place, same partition.
	Update(ctx context.Context, ref Ref, record *Record) error
}
