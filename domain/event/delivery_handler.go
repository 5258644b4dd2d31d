package event

import (
	"log/slog"
	"quorum/errors"
	"time"
)

// DeliveryDroppedType only exists as a Counter key.
const DeliveryDroppedType Type = "DELIVERY_DROPPED"

// DeliveryHandler reports fan-out results and the time between persist and delivery.
type DeliveryHandler struct {
	log              *slog.Logger
	counter          *Counter
	latencyThreshold time.Duration
}

func NewDeliveryHandler(log *slog.Logger, counter *Counter, latencyThreshold time.Duration) *DeliveryHandler {
	return &DeliveryHandler{log: log, counter: counter, latencyThreshold: latencyThreshold}
}

func (h *DeliveryHandler) Handle(event Event) {
	switch event.Type {
	case MessagePublishedType:
		payload, ok := event.Payload.(MessagePublished)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
			return
		}
		h.counter.Increment(MessagePublishedType)
		h.counter.Add(DeliveryDroppedType, uint64(payload.Dropped))

		leadTime := event.CreatedAt.Sub(payload.PersistedAt)
		h.log.Debug("telemetry: fan-out",
			"group_id", payload.Group,
			"sequence", payload.Sequence,
			"targets", payload.Targets,
			"delivered", payload.Delivered,
			"dropped", payload.Dropped,
			"lead_time_ms", leadTime.Milliseconds(),
		)
		if h.latencyThreshold > 0 && leadTime > h.latencyThreshold {
			h.log.Warn("high fan-out latency detected", "group_id", payload.Group, "lead_time", leadTime)
		}
	}
}
