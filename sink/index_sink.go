package sink

import (
	"context"
	"fmt"
	"log/slog"
	"quorum/contract"
	"quorum/domain"
	"quorum/domain/event"
	"sync"
	"time"

	"github.com/samber/lo"
)

// retainedBatches bounds how much a failing index can make the sink hold.
const retainedBatches = 10

// IndexSink buffers persisted messages and hands them to the search index in batches.
// A batch is flushed when it reaches maxBatch messages or bufferTimeout after its first message.
type IndexSink struct {
	mu            sync.Mutex
	timer         *time.Timer
	index         contract.ISearchIndex
	log           *slog.Logger
	messages      []domain.Message
	maxBatch      int
	bufferTimeout time.Duration
	indexTimeout  time.Duration
}

var _ contract.EventSink = (*IndexSink)(nil)

func NewIndexSink(
	index contract.ISearchIndex,
	log *slog.Logger,
	maxBatch int,
	bufferTimeout time.Duration,
	indexTimeout time.Duration,
) *IndexSink {
	if maxBatch <= 0 {
		maxBatch = 1
	}
	return &IndexSink{
		index:         index,
		log:           log,
		maxBatch:      maxBatch,
		bufferTimeout: bufferTimeout,
		indexTimeout:  indexTimeout,
	}
}

// Consume implements the EventSink interface.
// Only MessagePersisted events are indexed, everything else is ignored.
func (s *IndexSink) Consume(ctx context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessagePersisted)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.messages = append(s.messages, evt.Message)

	// Make sure a pending batch does not wait forever on a quiet server.
	if s.timer == nil {
		s.timer = time.AfterFunc(s.bufferTimeout, func() {
			if err := s.Flush(context.WithoutCancel(ctx)); err != nil {
				s.log.Error("Index timeout flush failed", "error", err)
			}
		})
	}
	isFull := len(s.messages) >= s.maxBatch
	s.mu.Unlock()

	if isFull {
		return s.Flush(ctx)
	}
	return nil
}

// Flush swaps the buffer out under the lock, then indexes it without holding the lock.
// A batch the index refused is put back in front of the buffer and retried
// with the next one.
func (s *IndexSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.messages) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.messages
	s.messages = make([]domain.Message, 0, s.maxBatch)
	s.mu.Unlock()

	indexCtx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()

	if err := s.index.Index(indexCtx, batch...); err != nil {
		s.requeue(batch)
		return fmt.Errorf("failed to index batch of %d messages: %w", len(batch), err)
	}
	s.log.Debug("Batch indexed", "count", len(batch))
	return nil
}

func (s *IndexSink) requeue(batch []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(batch, s.messages...)

	limit := retainedBatches * s.maxBatch
	if overflow := len(s.messages) - limit; overflow > 0 {
		lost := lo.Map(s.messages[:overflow], func(m domain.Message, _ int) string { return m.ID.String() })
		s.log.Error("Messages dropped from the search backlog", "count", overflow, "message_ids", lost)
		s.messages = s.messages[overflow:]
	}
}

// Pending is the number of buffered messages not indexed yet.
func (s *IndexSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
