package usecases

import (
	"sync"
	"time"
)

// DefaultRetryBase is the delay unit of the linear backoff.
const DefaultRetryBase = 5 * time.Second

// Scheduler runs fn once after d and returns a function that cancels it.
type Scheduler func(d time.Duration, fn func()) (cancel func())

// TimerScheduler schedules with time.AfterFunc.
func TimerScheduler(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// RetryController counts consecutive failures and schedules delayed
// re-attempts. The delay grows linearly with the count; there is no ceiling
// and no jitter. At most one attempt is pending at a time.
type RetryController struct {
	base     time.Duration
	schedule Scheduler

	mu        sync.Mutex
	count     int
	nextID    int
	pendingID int // 0 when nothing is pending
	cancel    func()
	stopped   bool
}

// NewRetryController creates a RetryController. A zero base means
// DefaultRetryBase and a nil scheduler means TimerScheduler.
func NewRetryController(base time.Duration, schedule Scheduler) *RetryController {
	if base <= 0 {
		base = DefaultRetryBase
	}
	if schedule == nil {
		schedule = TimerScheduler
	}
	return &RetryController{base: base, schedule: schedule}
}

// Fail records one more failure and returns the new count together with the
// delay before the next scheduled attempt.
func (r *RetryController) Fail() (count int, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return r.count, time.Duration(r.count) * r.base
}

// Reset zeroes the failure count. Already scheduled attempts still fire.
func (r *RetryController) Reset() {
	r.mu.Lock()
	r.count = 0
	r.mu.Unlock()
}

// Count returns the current number of consecutive failures.
func (r *RetryController) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Schedule runs fn after d unless Stop is called first. It supersedes an
// attempt that is still pending, so repeated failures keep a single timer.
func (r *RetryController) Schedule(d time.Duration, fn func()) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.nextID++
	id := r.nextID
	prev := r.cancel
	r.pendingID = id
	r.cancel = nil
	r.mu.Unlock()

	if prev != nil {
		prev()
	}

	cancel := r.schedule(d, func() {
		r.mu.Lock()
		ok := r.pendingID == id
		if ok {
			r.pendingID = 0
			r.cancel = nil
		}
		r.mu.Unlock()
		if ok {
			fn()
		}
	})

	r.mu.Lock()
	if r.pendingID == id {
		r.cancel = cancel
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	// Already fired, superseded or stopped.
	cancel()
}

// Pending returns the number of scheduled attempts that have not fired yet.
func (r *RetryController) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingID == 0 {
		return 0
	}
	return 1
}

// Stop cancels the pending attempt and rejects new ones.
func (r *RetryController) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.pendingID = 0
	r.cancel = nil
	r.stopped = true
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
