// Package autosave provides a cancellable one-shot task used to persist drafts
// some time after the first unsaved edit.
package autosave

import (
	"sync"
	"time"
)

const DefaultInterval = 120 * time.Second

// Task runs fn once per armed period. Schedule arms it; later Schedule calls
// while armed leave the deadline alone. fn receives the run's generation so
// it can confirm with Current that no Cancel or Schedule slipped in between
// the timer firing and fn taking its own lock.
type Task struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func(gen uint64)
	timer    *time.Timer
	gen      uint64
	armed    bool
	stopped  bool
}

func New(interval time.Duration, fn func(gen uint64)) *Task {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Task{interval: interval, fn: fn}
}

func (t *Task) Interval() time.Duration {
	return t.interval
}

// Schedule arms the timer if it is idle. It reports whether a new timer was armed.
func (t *Task) Schedule() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.armed {
		return false
	}
	t.gen++
	gen := t.gen
	t.armed = true
	t.timer = time.AfterFunc(t.interval, func() { t.fire(gen) })
	return true
}

// Cancel disarms a pending run. A callback already racing past its timer is discarded.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

// FireNow cancels any pending run and invokes the task on the calling goroutine.
func (t *Task) FireNow() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.disarmLocked()
	gen := t.gen
	t.mu.Unlock()
	t.fn(gen)
}

// Stop cancels and makes every later Schedule a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
	t.stopped = true
}

func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Current reports whether the run with this generation is still the latest:
// nothing was scheduled, cancelled or stopped since it started.
func (t *Task) Current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen == t.gen && !t.stopped
}

func (t *Task) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Task) disarmLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
	t.gen++
}

func (t *Task) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.armed || t.stopped {
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.timer = nil
	t.mu.Unlock()
	t.fn(gen)
}
