package usecases_test

import (
	"sync"
	"testing"
	"time"

	"github.com/osmfj/MapComplete/internal/core/usecases"
)

// --- Fake scheduler ---

type fakeScheduler struct {
	mu        sync.Mutex
	delays    []time.Duration
	fns       []func()
	cancelled int
}

func (s *fakeScheduler) schedule(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.fns = append(s.fns, fn)
	return func() {
		s.mu.Lock()
		s.cancelled++
		s.mu.Unlock()
	}
}

func (s *fakeScheduler) fire(t *testing.T, i int) {
	t.Helper()
	s.mu.Lock()
	if i >= len(s.fns) {
		s.mu.Unlock()
		t.Fatalf("timer %d was never scheduled (have %d)", i, len(s.fns))
	}
	fn := s.fns[i]
	s.mu.Unlock()
	fn()
}

func (s *fakeScheduler) scheduled() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func TestRetryController_LinearBackoff(t *testing.T) {
	r := usecases.NewRetryController(0, (&fakeScheduler{}).schedule)

	for i := 1; i <= 4; i++ {
		count, delay := r.Fail()
		if count != i {
			t.Errorf("expected count %d, got %d", i, count)
		}
		if delay != time.Duration(i)*5*time.Second {
			t.Errorf("expected %ds delay, got %v", 5*i, delay)
		}
	}

	r.Reset()
	if r.Count() != 0 {
		t.Errorf("expected 0 after reset, got %d", r.Count())
	}
	if _, delay := r.Fail(); delay != 5*time.Second {
		t.Errorf("expected backoff to restart at 5s, got %v", delay)
	}
}

func TestRetryController_CustomBase(t *testing.T) {
	r := usecases.NewRetryController(time.Second, nil)
	r.Fail()
	if _, delay := r.Fail(); delay != 2*time.Second {
		t.Errorf("expected 2s, got %v", delay)
	}
}

func TestRetryController_ScheduleFiresOnce(t *testing.T) {
	sched := &fakeScheduler{}
	r := usecases.NewRetryController(0, sched.schedule)

	calls := 0
	r.Schedule(5*time.Second, func() { calls++ })
	if r.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", r.Pending())
	}

	sched.fire(t, 0)
	sched.fire(t, 0)

	if calls != 1 {
		t.Errorf("expected a single run, got %d", calls)
	}
	if r.Pending() != 0 {
		t.Errorf("expected nothing pending, got %d", r.Pending())
	}
}

func TestRetryController_ScheduleSupersedesPending(t *testing.T) {
	sched := &fakeScheduler{}
	r := usecases.NewRetryController(0, sched.schedule)

	var ran []string
	r.Schedule(5*time.Second, func() { ran = append(ran, "first") })
	r.Schedule(10*time.Second, func() { ran = append(ran, "second") })

	if r.Pending() != 1 {
		t.Errorf("expected a single pending attempt, got %d", r.Pending())
	}
	if sched.cancelled != 1 {
		t.Errorf("expected the first timer to be cancelled, got %d", sched.cancelled)
	}

	sched.fire(t, 0)
	sched.fire(t, 1)

	if len(ran) != 1 || ran[0] != "second" {
		t.Errorf("expected only the latest attempt to run, got %v", ran)
	}
}

func TestRetryController_RepeatedFailuresKeepOneTimer(t *testing.T) {
	sched := &fakeScheduler{}
	r := usecases.NewRetryController(0, sched.schedule)

	for i := 0; i < 1000; i++ {
		_, delay := r.Fail()
		r.Schedule(delay, func() {})
	}

	if r.Pending() != 1 {
		t.Errorf("expected 1 pending attempt, got %d", r.Pending())
	}
	if sched.cancelled != 999 {
		t.Errorf("expected 999 superseded timers, got %d", sched.cancelled)
	}
}

func TestRetryController_StopCancelsPending(t *testing.T) {
	sched := &fakeScheduler{}
	r := usecases.NewRetryController(0, sched.schedule)

	calls := 0
	r.Schedule(5*time.Second, func() { calls++ })
	r.Stop()
	r.Schedule(15*time.Second, func() { calls++ })

	sched.fire(t, 0)

	if calls != 0 {
		t.Errorf("expected no runs after Stop, got %d", calls)
	}
	if sched.cancelled != 1 {
		t.Errorf("expected 1 cancellation, got %d", sched.cancelled)
	}
	if got := len(sched.scheduled()); got != 1 {
		t.Errorf("expected Schedule after Stop to be ignored, got %d timers", got)
	}
	if r.Pending() != 0 {
		t.Errorf("expected nothing pending, got %d", r.Pending())
	}
}

func TestRetryController_SynchronousScheduler(t *testing.T) {
	immediate := func(d time.Duration, fn func()) func() {
		fn()
		return func() {}
	}
	r := usecases.NewRetryController(0, immediate)

	ran := false
	r.Schedule(time.Second, func() { ran = true })

	if !ran {
		t.Error("expected fn to run")
	}
	if r.Pending() != 0 {
		t.Errorf("expected nothing pending, got %d", r.Pending())
	}
}

func TestTimerScheduler(t *testing.T) {
	done := make(chan struct{})
	r := usecases.NewRetryController(0, usecases.TimerScheduler)
	r.Schedule(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}
