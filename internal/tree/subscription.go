package tree

import (
	"encoding/json"
	"sync"
)

// subscription is an unbounded, ordered mailbox drained by its own goroutine,
// so a slow subscriber never blocks writers or other subscribers.
type subscription struct {
	path []string
	fn   func(json.RawMessage)

	// last is the most recently enqueued value; guarded by Tree.mu.
	last json.RawMessage

	mu     sync.Mutex
	queue  []json.RawMessage
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newSubscription(path []string, fn func(json.RawMessage)) *subscription {
	return &subscription{
		path: path,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *subscription) enqueue(v json.RawMessage) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) next() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return nil, false
	}
	v := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return v, true
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			v, ok := s.next()
			if !ok {
				break
			}
			s.fn(v)
		}
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	close(s.done)
}
