package workers

import (
	"context"
	"log/slog"
	"quorum/contract"
	"quorum/domain/event"
	"time"
)

// EventFanout hands pipeline events to in-process consumers such as the
// search index, then forwards them to telemetry.
//
// Delivery is best effort: no retry, no durability. Live delivery to
// connections never goes through here, the Router does it synchronously.
type EventFanout struct {
	log            *slog.Logger
	events         chan event.Event
	telemetryChan  chan event.Event
	sinks          []contract.EventSink
	consumeTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events, telemetryChan chan event.Event, consumeTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{
		log:            log,
		events:         events,
		telemetryChan:  telemetryChan,
		sinks:          sinks,
		consumeTimeout: consumeTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fan-out")
			return nil
		case evt := <-w.events:
			w.Fanout(ctx, evt)
			select {
			case w.telemetryChan <- evt:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

// Fanout gives every sink its own deadline so a slow one cannot stall the others.
func (w *EventFanout) Fanout(ctx context.Context, evt event.Event) {
	domainEvent, ok := evt.Payload.(event.DomainEvent)
	if !ok {
		return
	}
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.consumeTimeout)
		if err := sink.Consume(sinkCtx, domainEvent); err != nil {
			w.log.Warn("Sink failed to consume event", "type", evt.Type, "group_id", domainEvent.GroupID(), "error", err)
		}
		cancel()
	}
}
