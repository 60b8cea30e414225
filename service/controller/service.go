// Package controller bounds how many tasks are worked on at once. A single
// goroutine owns the active set, the priority wait queue and the processed
// set; all access goes through its command channel, so there is no shared
// mutable state to lock.
package controller

import (
	"github.com/taskgate/taskgate/model"
)

// DefaultMaxConcurrent is the default bound on simultaneously active tasks.
const DefaultMaxConcurrent = 3

// Admission is the result of offering a task to the controller.
type Admission int

const (
	// Admitted means the task occupies an active slot and may proceed.
	Admitted Admission = iota
	// Queued means all slots are taken; the task waits in FIFO order and is
	// never silently dropped.
	Queued
	// Suppressed means the task is already active, waiting or terminally
	// processed - the idempotency guard against re-scanning the same record
	// on consecutive sweeps.
	Suppressed
)

// Waiter identifies a queued task popped on release.
type Waiter struct {
	ID       string
	Priority model.Priority
}

type commandKind int

const (
	cmdAdmit commandKind = iota
	cmdRelease
	cmdMarkProcessed
	cmdProcessed
	cmdCounts
	cmdRebuild
)

type command struct {
	kind      commandKind
	id        string
	priority  model.Priority
	processed []string
	reply     chan reply
}

type reply struct {
	admission Admission
	waiters   []Waiter
	flag      bool
	active    int
	waiting   int
}

// Service is the concurrency/queue controller.
type Service struct {
	maxConcurrent int
	commands      chan command
	shutdownCh    chan struct{}
}

// New creates a controller and starts its owning goroutine.
func New(maxConcurrent int) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	ret := &Service{
		maxConcurrent: maxConcurrent,
		commands:      make(chan command),
		shutdownCh:    make(chan struct{}),
	}
	go ret.run()
	return ret
}

// Admit offers a task for an active slot. High-priority tasks queued behind
// a full active set are drained ahead of normal ones on release.
func (s *Service) Admit(id string, priority model.Priority) Admission {
	return s.send(command{kind: cmdAdmit, id: id, priority: priority}).admission
}

// Release frees the task's active slot and admits as many waiters as
// capacity allows, returned in admission order.
func (s *Service) Release(id string) []Waiter {
	return s.send(command{kind: cmdRelease, id: id}).waiters
}

// MarkProcessed records a task as terminally processed so it is never
// re-admitted.
func (s *Service) MarkProcessed(id string) {
	s.send(command{kind: cmdMarkProcessed, id: id})
}

// Processed reports whether a task was already terminally processed.
func (s *Service) Processed(id string) bool {
	return s.send(command{kind: cmdProcessed, id: id}).flag
}

// Counts returns the current active and waiting sizes.
func (s *Service) Counts() (active, waiting int) {
	r := s.send(command{kind: cmdCounts})
	return r.active, r.waiting
}

// Rebuild resets all in-memory state after a restart, seeding the processed
// set from a store re-scan of the terminal partition.
func (s *Service) Rebuild(processed []string) {
	s.send(command{kind: cmdRebuild, processed: processed})
}

// Shutdown stops the owning goroutine. The controller must not be used
// afterwards.
func (s *Service) Shutdown() {
	close(s.shutdownCh)
}

func (s *Service) send(cmd command) reply {
	cmd.reply = make(chan reply, 1)
	select {
	case s.commands <- cmd:
		return <-cmd.reply
	case <-s.shutdownCh:
		return reply{admission: Suppressed}
	}
}

type state struct {
	active      map[string]struct{}
	processed   map[string]struct{}
	waitingHigh []string
	waitingNorm []string
	queued      map[string]struct{}
}

func (s *Service) run() {
	st := &state{
		active:    make(map[string]struct{}),
		processed: make(map[string]struct{}),
		queued:    make(map[string]struct{}),
	}
	for {
		select {
		case <-s.shutdownCh:
			return
		case cmd := <-s.commands:
			cmd.reply <- s.apply(st, cmd)
		}
	}
}

func (s *Service) apply(st *state, cmd command) reply {
	switch cmd.kind {
	case cmdAdmit:
		if _, ok := st.processed[cmd.id]; ok {
			return reply{admission: Suppressed}
		}
		if _, ok := st.active[cmd.id]; ok {
			return reply{admission: Suppressed}
		}
		if _, ok := st.queued[cmd.id]; ok {
			return reply{admission: Queued}
		}
		if len(st.active) < s.maxConcurrent {
			st.active[cmd.id] = struct{}{}
			return reply{admission: Admitted}
		}
		st.queued[cmd.id] = struct{}{}
		if cmd.priority == model.PriorityHigh {
			st.waitingHigh = append(st.waitingHigh, cmd.id)
		} else {
			st.waitingNorm = append(st.waitingNorm, cmd.id)
		}
		return reply{admission: Queued}

	case cmdRelease:
		delete(st.active, cmd.id)
		var admitted []Waiter
		for len(st.active) < s.maxConcurrent {
			waiter, ok := pop(st)
			if !ok {
				break
			}
			st.active[waiter.ID] = struct{}{}
			admitted = append(admitted, waiter)
		}
		return reply{waiters: admitted}

	case cmdMarkProcessed:
		st.processed[cmd.id] = struct{}{}
		return reply{}

	case cmdProcessed:
		_, ok := st.processed[cmd.id]
		return reply{flag: ok}

	case cmdCounts:
		return reply{active: len(st.active), waiting: len(st.waitingHigh) + len(st.waitingNorm)}

	case cmdRebuild:
		st.active = make(map[string]struct{})
		st.queued = make(map[string]struct{})
		st.waitingHigh = nil
		st.waitingNorm = nil
		st.processed = make(map[string]struct{})
		for _, id := range cmd.processed {
			st.processed[id] = struct{}{}
		}
		return reply{}
	}
	return reply{}
}

// pop dequeues the next waiter, high priority ahead of normal, FIFO within
// each band. Waiters that became processed while queued are skipped.
func pop(st *state) (Waiter, bool) {
	for len(st.waitingHigh) > 0 {
		id := st.waitingHigh[0]
		st.waitingHigh = st.waitingHigh[1:]
		delete(st.queued, id)
		if _, done := st.processed[id]; !done {
			return Waiter{ID: id, Priority: model.PriorityHigh}, true
		}
	}
	for len(st.waitingNorm) > 0 {
		id := st.waitingNorm[0]
		st.waitingNorm = st.waitingNorm[1:]
		delete(st.queued, id)
		if _, done := st.processed[id]; !done {
			return Waiter{ID: id, Priority: model.PriorityNormal}, true
		}
	}
	return Waiter{}, false
}
