package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskgate/taskgate/model"
)

func TestAdmitBound(t *testing.T) {
	service := New(2)
	defer service.Shutdown()

	assert.Equal(t, Admitted, service.Admit("a", model.PriorityNormal))
	assert.Equal(t, Admitted, service.Admit("b", model.PriorityNormal))
	assert.Equal(t, Queued, service.Admit("c", model.PriorityNormal))

	active, waiting := service.Counts()
	assert.Equal(t, 2, active)
	assert.Equal(t, 1, waiting)

	// Re-offering an active or queued task never double-books a slot.
	assert.Equal(t, Suppressed, service.Admit("a", model.PriorityNormal))
	assert.Equal(t, Queued, service.Admit("c", model.PriorityNormal))
	active, waiting = service.Counts()
	assert.Equal(t, 2, active)
	assert.Equal(t, 1, waiting)
}

func TestReleaseAdmitsWaiters(t *testing.T) {
	service := New(1)
	defer service.Shutdown()

	assert.Equal(t, Admitted, service.Admit("a", model.PriorityNormal))
	assert.Equal(t, Queued, service.Admit("b", model.PriorityNormal))
	assert.Equal(t, Queued, service.Admit("c", model.PriorityNormal))

	waiters := service.Release("a")
	assert.Len(t, waiters, 1)
	assert.Equal(t, "b", waiters[0].ID)

	waiters = service.Release("b")
	assert.Len(t, waiters, 1)
	assert.Equal(t, "c", waiters[0].ID)

	waiters = service.Release("c")
	assert.Len(t, waiters, 0)
	active, waiting := service.Counts()
	assert.Equal(t, 0, active)
	assert.Equal(t, 0, waiting)
}

func TestHighPriorityDrainsFirst(t *testing.T) {
	service := New(1)
	defer service.Shutdown()

	assert.Equal(t, Admitted, service.Admit("active", model.PriorityNormal))
	assert.Equal(t, Queued, service.Admit("normal-1", model.PriorityNormal))
	assert.Equal(t, Queued, service.Admit("urgent-1", model.PriorityHigh))
	assert.Equal(t, Queued, service.Admit("urgent-2", model.PriorityHigh))

	waiters := service.Release("active")
	assert.Equal(t, "urgent-1", waiters[0].ID)
	waiters = service.Release("urgent-1")
	assert.Equal(t, "urgent-2", waiters[0].ID)
	waiters = service.Release("urgent-2")
	assert.Equal(t, "normal-1", waiters[0].ID)
}

func TestProcessedGuard(t *testing.T) {
	service := New(2)
	defer service.Shutdown()

	assert.Equal(t, Admitted, service.Admit("a", model.PriorityNormal))
	service.MarkProcessed("a")
	service.Release("a")
	assert.True(t, service.Processed("a"))
	assert.Equal(t, Suppressed, service.Admit("a", model.PriorityNormal))

	// A waiter processed while queued is skipped on release.
	assert.Equal(t, Admitted, service.Admit("b", model.PriorityNormal))
	assert.Equal(t, Admitted, service.Admit("c", model.PriorityNormal))
	assert.Equal(t, Queued, service.Admit("d", model.PriorityNormal))
	service.MarkProcessed("d")
	waiters := service.Release("b")
	assert.Len(t, waiters, 0)
}

func TestRebuild(t *testing.T) {
	service := New(1)
	defer service.Shutdown()

	assert.Equal(t, Admitted, service.Admit("a", model.PriorityNormal))
	assert.Equal(t, Queued, service.Admit("b", model.PriorityNormal))

	service.Rebuild([]string{"x", "y"})
	active, waiting := service.Counts()
	assert.Equal(t, 0, active)
	assert.Equal(t, 0, waiting)
	assert.True(t, service.Processed("x"))
	assert.True(t, service.Processed("y"))
	assert.False(t, service.Processed("a"))
	assert.Equal(t, Suppressed, service.Admit("x", model.PriorityNormal))
	assert.Equal(t, Admitted, service.Admit("a", model.PriorityNormal))
}
