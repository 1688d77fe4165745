// Package broadcast provides ordered, non-blocking event subscriptions.
package broadcast

import "sync"

// Subscription delivers values in the order they were pushed. Values are
// queued without bound so a producer never waits on a slow reader.
type Subscription[T any] struct {
	ch     chan T
	notify chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	queue  []T
	ended  bool
	closed bool

	detach func()
}

// New starts a subscription. detach, if set, runs once when the consumer calls Close.
func New[T any](detach func()) *Subscription[T] {
	s := &Subscription[T]{
		ch:     make(chan T),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		detach: detach,
	}
	go s.pump()
	return s
}

// Events is closed after End once everything queued was received, or after Close.
func (s *Subscription[T]) Events() <-chan T {
	return s.ch
}

// Close stops delivery and drops anything still queued. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	close(s.done)
	if s.detach != nil {
		s.detach()
	}
}

// Push queues v. Pushes after End or Close are dropped.
func (s *Subscription[T]) Push(v T) {
	s.mu.Lock()
	if s.ended || s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.wake()
}

// End marks the stream complete; values already queued are still delivered.
func (s *Subscription[T]) End() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.ch)
	var zero T
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			ended := s.ended
			s.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-s.notify:
			case <-s.done:
				return
			}
			continue
		}
		v := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()
		select {
		case s.ch <- v:
		case <-s.done:
			return
		}
	}
}
