// Package observable provides a mutable value with change subscriptions.
package observable

import "sync"

// Value holds a T and notifies subscribers synchronously, in subscription
// order. Subscribers run without the value's lock held, so they may read
// the value or set other values.
type Value[T any] struct {
	mu     sync.RWMutex
	data   T
	set    bool
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// New returns a Value that already holds data.
func New[T any](data T) *Value[T] {
	return &Value[T]{data: data, set: true}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.data
}

// Lookup returns the current value and whether it was ever set.
func (v *Value[T]) Lookup() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.data, v.set
}

// Set stores data and notifies subscribers.
func (v *Value[T]) Set(data T) {
	v.Store(data)()
}

// Store replaces the value without notifying anyone. The returned function
// notifies subscribers with whatever the value holds when it is called, so
// callers can update under their own lock and notify after releasing it.
func (v *Value[T]) Store(data T) (notify func()) {
	v.mu.Lock()
	v.data = data
	v.set = true
	v.mu.Unlock()
	return v.notify
}

func (v *Value[T]) notify() {
	v.mu.RLock()
	data := v.data
	subs := make([]subscriber[T], len(v.subs))
	copy(subs, v.subs)
	v.mu.RUnlock()

	for _, s := range subs {
		s.fn(data)
	}
}

// Subscribe registers fn for future changes.
func (v *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs = append(v.subs, subscriber[T]{id: id, fn: fn})
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			for i, s := range v.subs {
				if s.id == id {
					v.subs = append(v.subs[:i:i], v.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// View returns a read-only handle on v.
func (v *Value[T]) View() View[T] {
	return View[T]{v: v}
}

// View exposes a Value to readers that must not write it.
type View[T any] struct {
	v *Value[T]
}

func (r View[T]) Get() T            { return r.v.Get() }
func (r View[T]) Lookup() (T, bool) { return r.v.Lookup() }

func (r View[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	return r.v.Subscribe(fn)
}
