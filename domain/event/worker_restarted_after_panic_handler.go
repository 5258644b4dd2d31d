package event

import (
	"log/slog"
	"quorum/errors"
	"sync"
)

// WorkerRestartedAfterPanicHandler counts the restarts reported by the
// supervisor, in total on the shared Counter and per worker.
type WorkerRestartedAfterPanicHandler struct {
	log      *slog.Logger
	counter  *Counter
	mu       sync.Mutex
	byWorker map[string]uint64
}

func NewWorkerRestartedAfterPanicHandler(log *slog.Logger, counter *Counter) *WorkerRestartedAfterPanicHandler {
	return &WorkerRestartedAfterPanicHandler{
		log:      log,
		counter:  counter,
		byWorker: make(map[string]uint64),
	}
}

func (h *WorkerRestartedAfterPanicHandler) Handle(event Event) {
	if event.Type != RestartedAfterPanicType {
		return
	}
	payload, ok := event.Payload.(WorkerRestartedAfterPanic)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.counter.Increment(RestartedAfterPanicType)
	h.mu.Lock()
	h.byWorker[payload.WorkerName]++
	restarts := h.byWorker[payload.WorkerName]
	h.mu.Unlock()
	h.log.Warn("Worker restarted after panic",
		"worker", payload.WorkerName,
		"restarts", restarts,
		"total", h.counter.Get(RestartedAfterPanicType))
}

func (h *WorkerRestartedAfterPanicHandler) Restarts(worker string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.byWorker[worker]
}
