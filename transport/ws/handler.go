// Package ws is the websocket transport: one connection per client, JSON
// envelopes in both directions, a single writer per connection.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"quorum/auth"
	"quorum/contract"
	"quorum/domain"
	"quorum/errors"
	"quorum/sink"
	"quorum/transport"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Options struct {
	BufferSize        int
	MaxFrameBytes     int64
	RateLimitBurst    int
	RateLimitInterval time.Duration
	AllowedOrigins    []string
}

// Handler upgrades requests and runs the pumps of every connection it accepted.
type Handler struct {
	log        *slog.Logger
	resolver   *auth.Resolver
	router     contract.IRouter
	ingest     contract.IIngestService
	authorizer contract.IAuthorizer
	upgrader   websocket.Upgrader
	options    Options

	mu      sync.Mutex
	conns   map[domain.ConnectionID]struct{}
	closing bool
	wg      sync.WaitGroup
}

func NewHandler(
	log *slog.Logger,
	resolver *auth.Resolver,
	router contract.IRouter,
	ingest contract.IIngestService,
	authorizer contract.IAuthorizer,
	options Options,
) *Handler {
	origins := NewOriginPolicy(log, options.AllowedOrigins)
	return &Handler{
		log:        log,
		resolver:   resolver,
		router:     router,
		ingest:     ingest,
		authorizer: authorizer,
		options:    options,
		conns:      make(map[domain.ConnectionID]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		transport.WriteJSON(w, http.StatusMethodNotAllowed, transport.ErrorBody{
			Status: http.StatusMethodNotAllowed,
			Error:  "websocket endpoint only accepts GET requests",
		})
		return
	}
	if h.isClosing() {
		transport.WriteError(w, errors.ErrShuttingDown)
		return
	}
	identity, err := h.resolver.Resolve(r)
	if err != nil {
		h.log.Debug("Websocket identity rejected", "remote_addr", r.RemoteAddr, "error", err)
		transport.WriteError(w, err)
		return
	}

	// The upgrader already replied when it fails
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := newConnection(h, conn, identity)
	if err = h.router.Connect(c.id, identity, c.queue); err != nil {
		h.log.Error("Connection not registered", "error", err)
		_ = conn.Close()
		return
	}
	if !h.track(c.id) {
		h.router.Disconnect(c.id)
		_ = conn.Close()
		return
	}
	c.log.Info("Websocket connected", "name", identity.Name, "guest", identity.IsGuest(), "remote_addr", r.RemoteAddr)

	go c.writePump()
	c.readPump(context.WithoutCancel(r.Context()))
}

// Active is the number of connections whose pumps are running.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown refuses new connections, closes the open ones after their queue
// is flushed and waits for every pump to stop or ctx to end.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	ids := lo.Keys(h.conns)
	h.mu.Unlock()

	for _, id := range ids {
		h.router.Disconnect(id)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.log.Info("Websocket connections closed", "count", len(ids))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track registers the pumps of connID, both must call wg.Done.
func (h *Handler) track(connID domain.ConnectionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[connID] = struct{}{}
	h.wg.Add(2)
	return true
}

func (h *Handler) forget(connID domain.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
}

func (h *Handler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

func newLimiter(burst int, interval time.Duration) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	// burst messages per interval, refilled continuously
	return rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst)
}

func newConnection(h *Handler, conn *websocket.Conn, identity domain.Identity) *connection {
	id := domain.NewConnectionID()
	return &connection{
		id:       id,
		identity: identity,
		conn:     conn,
		queue:    sink.NewQueueSink(h.options.BufferSize),
		limiter:  newLimiter(h.options.RateLimitBurst, h.options.RateLimitInterval),
		handler:  h,
		log:      h.log.With("connection_id", id),
	}
}
