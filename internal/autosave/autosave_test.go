package autosave

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestScheduleFiresOnce(t *testing.T) {
	var calls atomic.Int32
	task := New(20*time.Millisecond, func(uint64) { calls.Add(1) })
	if !task.Schedule() {
		t.Fatalf("first schedule should arm")
	}
	if task.Schedule() {
		t.Fatalf("schedule while armed should not re-arm")
	}
	waitFor(t, func() bool { return calls.Load() == 1 })
	if task.Pending() {
		t.Fatalf("task should be idle after firing")
	}
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("expected a single run, got %d", calls.Load())
	}
}

func TestNotScheduledNeverFires(t *testing.T) {
	var calls atomic.Int32
	New(10*time.Millisecond, func(uint64) { calls.Add(1) })
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("unscheduled task fired")
	}
}

func TestCancelSuppressesRun(t *testing.T) {
	var calls atomic.Int32
	task := New(20*time.Millisecond, func(uint64) { calls.Add(1) })
	task.Schedule()
	task.Cancel()
	if task.Pending() {
		t.Fatalf("cancel should disarm")
	}
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("cancelled task fired")
	}
}

func TestFireNowRunsSynchronously(t *testing.T) {
	var calls atomic.Int32
	task := New(time.Hour, func(uint64) { calls.Add(1) })
	task.Schedule()
	task.FireNow()
	if calls.Load() != 1 {
		t.Fatalf("expected FireNow to run the task")
	}
	if task.Pending() {
		t.Fatalf("FireNow should clear the pending timer")
	}
}

func TestStopPreventsFurtherScheduling(t *testing.T) {
	var calls atomic.Int32
	task := New(10*time.Millisecond, func(uint64) { calls.Add(1) })
	task.Schedule()
	task.Stop()
	if task.Schedule() {
		t.Fatalf("schedule after stop should be a no-op")
	}
	task.FireNow()
	time.Sleep(40 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("stopped task ran %d times", calls.Load())
	}
	if !task.Stopped() {
		t.Fatalf("expected stopped")
	}
}

func TestRescheduleAfterFire(t *testing.T) {
	var calls atomic.Int32
	task := New(10*time.Millisecond, func(uint64) { calls.Add(1) })
	task.Schedule()
	waitFor(t, func() bool { return calls.Load() == 1 })
	if !task.Schedule() {
		t.Fatalf("should be able to re-arm after firing")
	}
	waitFor(t, func() bool { return calls.Load() == 2 })
}

func TestDefaultInterval(t *testing.T) {
	if New(0, func(uint64) {}).Interval() != DefaultInterval {
		t.Fatalf("zero interval should fall back to default")
	}
}

func TestStaleRunIsNotCurrent(t *testing.T) {
	started := make(chan uint64, 1)
	release := make(chan struct{})
	result := make(chan bool, 1)
	var first atomic.Bool
	var task *Task
	task = New(10*time.Millisecond, func(gen uint64) {
		if !first.CompareAndSwap(false, true) {
			return
		}
		started <- gen
		<-release
		result <- task.Current(gen)
	})
	defer task.Stop()
	task.Schedule()
	gen := <-started
	if !task.Current(gen) {
		t.Fatalf("fresh run should be current")
	}
	// a manual save and a new edit land while the callback waits
	task.Cancel()
	task.Schedule()
	close(release)
	if <-result {
		t.Fatalf("superseded run still reported current")
	}
}

func TestFireNowRunIsCurrent(t *testing.T) {
	var ok atomic.Bool
	var task *Task
	task = New(time.Hour, func(gen uint64) { ok.Store(task.Current(gen)) })
	task.FireNow()
	if !ok.Load() {
		t.Fatalf("synchronous run should be current")
	}
}
