// Package scheduler provides cancellable single-shot task scheduling for
// order escalation timers.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"wave_trader/internal/core"
)

// Task is an opaque handle for a scheduled action. Cancel is safe to call
// on a nil handle and after the action has fired; the action runs at most
// once regardless of how a cancel races with the fire time.
type Task struct {
	claimed atomic.Bool
	timer   *time.Timer
	sched   *Scheduler
}

// Cancel prevents the action from running if it has not been claimed by the
// fire path yet. It reports whether the cancel won the race.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	if !t.claimed.CompareAndSwap(false, true) {
		return false
	}
	t.timer.Stop()
	t.sched.remove(t)
	return true
}

// Scheduler schedules delayed single-shot actions and releases all pending
// ones on Stop.
type Scheduler struct {
	mu      sync.Mutex
	pending map[*Task]struct{}
	stopped bool
	logger  core.ILogger
}

// New creates a Scheduler
func New(logger core.ILogger) *Scheduler {
	return &Scheduler{
		pending: make(map[*Task]struct{}),
		logger:  logger.WithField("component", "scheduler"),
	}
}

// Schedule runs fn once after delay unless the returned handle is cancelled
// first. fn runs on the timer goroutine.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) *Task {
	t := &Task{sched: s}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		// A stopped scheduler hands back a pre-claimed handle so the
		// caller's Cancel bookkeeping still works.
		t.claimed.Store(true)
		t.timer = time.NewTimer(0)
		t.timer.Stop()
		return t
	}
	t.timer = time.AfterFunc(delay, func() {
		// The claim decides the cancel/fire race: exactly one side wins.
		if !t.claimed.CompareAndSwap(false, true) {
			return
		}
		s.remove(t)
		fn()
	})
	s.pending[t] = struct{}{}
	s.mu.Unlock()
	return t
}

func (s *Scheduler) remove(t *Task) {
	s.mu.Lock()
	delete(s.pending, t)
	s.mu.Unlock()
}

// Pending returns the number of tasks that have neither fired nor been
// cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending task and rejects further scheduling. It is
// called on both the success and the error exit path.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tasks := make([]*Task, 0, len(s.pending))
	for t := range s.pending {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
	s.logger.Debug("Scheduler stopped", "released", len(tasks))
}
