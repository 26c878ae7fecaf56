// Package notify implements the subscriber list shared by the stores.
package notify

import "sync"

// Subscribers is a list of callbacks notified in subscription order.
// The zero value is ready to use.
type Subscribers[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Add registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (s *Subscribers[T]) Add(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// Notify calls every current subscriber with v on the calling goroutine.
// Callbacks may subscribe or unsubscribe without deadlocking.
func (s *Subscribers[T]) Notify(v T) {
	s.mu.Lock()
	subs := make([]subscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(v)
	}
}

// Len returns the number of subscribers.
func (s *Subscribers[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subscribers[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}
