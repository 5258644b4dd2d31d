package event

import (
	"log/slog"
	"quorum/errors"
	"sync"
)

// CensoredHandler keeps how often each moderated word was hit.
type CensoredHandler struct {
	mu      sync.Mutex
	log     *slog.Logger
	counter uint64
	hit     map[string]uint64
}

func NewCensoredHandler(log *slog.Logger) *CensoredHandler {
	return &CensoredHandler{
		log: log,
		hit: make(map[string]uint64),
	}
}

func (h *CensoredHandler) Handle(event Event) {
	switch event.Type {
	case CensorshipHitType:
		payload, ok := event.Payload.(Censored)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.counter++
		for _, word := range payload.Words {
			h.hit[word]++
		}
		h.log.Debug("Message censored", "group_id", payload.Group, "words", len(payload.Words), "total", h.counter)
	}
}

func (h *CensoredHandler) Hits(word string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hit[word]
}
