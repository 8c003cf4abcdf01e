package town

import (
	"context"
	"sync"
)

// Listener receives a town's events. Notify is called while the town is
// locked, so implementations must not block and must not call back into the
// Controller. Listeners are compared by identity and should be pointers.
type Listener interface {
	Notify(Event) error
}

// Subscription is a Listener backed by an unbounded FIFO queue. The town pushes
// onto it without blocking and a single consumer drains it with Next.
type Subscription struct {
	mu     sync.Mutex
	queue  []Event
	closed bool

	ready chan struct{}
	done  chan struct{}
}

func NewSubscription() *Subscription {
	return &Subscription{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Notify satisfies Listener.
func (s *Subscription) Notify(ev Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSubscriptionClosed
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return nil
}

// Next blocks until an event is queued, the subscription is closed, or ctx is
// done. Events queued before Close are still returned.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return Event{}, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.done:
		case <-s.ready:
		}
	}
}

// Len returns the number of queued events.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the subscription from accepting events. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}
