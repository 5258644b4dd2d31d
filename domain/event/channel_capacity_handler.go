package event

import (
	"log/slog"
	"quorum/errors"
	"sync"
)

// ChannelCapacityHandler warns once when an internal queue gets close to
// full and once more when it recovers. A lagging event queue means search
// indexing falls behind the rooms.
type ChannelCapacityHandler struct {
	log                  *slog.Logger
	lowCapacityThreshold int
	mu                   sync.Mutex
	saturated            map[string]bool
}

func NewChannelCapacityHandler(log *slog.Logger, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{
		log:                  log,
		lowCapacityThreshold: lowCapacityThreshold,
		saturated:            make(map[string]bool),
	}
}

func (h *ChannelCapacityHandler) Handle(event Event) {
	if event.Type != ChannelCapacityType {
		return
	}
	gauge, ok := event.Payload.(ChannelCapacity)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	if gauge.Capacity <= 0 {
		return
	}
	left := gauge.Capacity - gauge.Length
	low := left <= h.lowCapacityThreshold

	h.mu.Lock()
	was := h.saturated[gauge.ChannelName]
	h.saturated[gauge.ChannelName] = low
	h.mu.Unlock()

	switch {
	case low && !was:
		h.log.Warn("Channel nearly full", "channel", gauge.ChannelName, "length", gauge.Length, "capacity", gauge.Capacity)
	case !low && was:
		h.log.Info("Channel recovered", "channel", gauge.ChannelName, "length", gauge.Length, "capacity", gauge.Capacity)
	default:
		h.log.Debug("Channel usage", "channel", gauge.ChannelName, "length", gauge.Length, "capacity", gauge.Capacity)
	}
}

// Saturated reports whether channel was nearly full at its last gauge.
func (h *ChannelCapacityHandler) Saturated(channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.saturated[channel]
}
