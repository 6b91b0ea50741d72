// Package observer keeps a list of callbacks with scoped subscriptions.
package observer

import "sync"

// List delivers values to subscribers in subscription order. Callbacks run
// on the notifying goroutine and must not subscribe or unsubscribe.
type List[T any] struct {
	mu     sync.Mutex
	subs   []entry[T]
	nextID int
	closed bool
}

type entry[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns the handle that removes it. The handle
// is safe to call more than once.
func (l *List[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return func() {}
	}
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, entry[T]{id: id, fn: fn})

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// Notify calls every current subscriber with v. The lock is held for the
// whole delivery so no callback runs after Close returns.
func (l *List[T]) Notify(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.subs {
		s.fn(v)
	}
}

func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Close drops every subscriber and ignores later subscriptions.
func (l *List[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.subs = nil
}
