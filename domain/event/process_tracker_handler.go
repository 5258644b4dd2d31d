package event

import (
	"log/slog"
	"quorum/errors"
	"sync"
)

// ProcessTrackerHandler keeps the latest sample of the server process.
type ProcessTrackerHandler struct {
	log  *slog.Logger
	mu   sync.Mutex
	last ProcessTracker
}

func NewProcessTrackerHandler(log *slog.Logger) *ProcessTrackerHandler {
	return &ProcessTrackerHandler{log: log}
}

func (h *ProcessTrackerHandler) Handle(event Event) {
	if event.Type != PIDTrackerType {
		return
	}
	sample, ok := event.Payload.(ProcessTracker)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.mu.Lock()
	h.last = sample
	h.mu.Unlock()
	h.log.Debug("Process sample",
		"pid", sample.PID,
		"state", sample.Status,
		"cpu_percent", sample.Cpu,
		"ram_percent", sample.Ram,
		"goroutines", sample.Goroutines,
		"connections", sample.Connections,
	)
}

// Last is the zero value until the first sample arrives.
func (h *ProcessTrackerHandler) Last() ProcessTracker {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
