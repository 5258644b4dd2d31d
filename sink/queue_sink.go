package sink

import (
	"quorum/contract"
	"quorum/domain"
	"quorum/errors"
	"sync"
)

// QueueSink is the bounded outbound queue of one connection.
// The transport write pump drains C(); Deliver never blocks the publisher.
type QueueSink struct {
	mu     sync.RWMutex
	queue  chan domain.Outbound
	closed bool
}

var _ contract.ConnectionSink = (*QueueSink)(nil)

func NewQueueSink(size int) *QueueSink {
	if size <= 0 {
		size = 1
	}
	return &QueueSink{queue: make(chan domain.Outbound, size)}
}

// Deliver enqueues evt or reports why it could not.
func (s *QueueSink) Deliver(evt domain.Outbound) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrSinkClosed
	}
	select {
	case s.queue <- evt:
		return nil
	default:
		return errors.ErrSinkFull
	}
}

// Close is idempotent. Events already queued stay readable from C().
func (s *QueueSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

func (s *QueueSink) C() <-chan domain.Outbound {
	return s.queue
}

func (s *QueueSink) Len() int { return len(s.queue) }

func (s *QueueSink) Cap() int { return cap(s.queue) }
