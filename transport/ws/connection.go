package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"quorum/domain"
	"quorum/errors"
	"quorum/sink"
	"quorum/transport"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Inbound is one client frame. Ref is echoed on the reply so the client can match them.
type Inbound struct {
	Event domain.EventName `json:"event"`
	Ref   string           `json:"ref,omitempty"`
	Data  json.RawMessage  `json:"data,omitempty"`
}

// Ack answers a newMessage once the message is durable.
type Ack struct {
	Ref       string          `json:"ref,omitempty"`
	MessageID uuid.UUID       `json:"message_id"`
	Sequence  uint64          `json:"sequence"`
	Stage     domain.Stage    `json:"stage"`
	Delivery  domain.Delivery `json:"delivery"`
}

// Membership answers joinGroup and leaveGroup.
type Membership struct {
	Ref     string         `json:"ref,omitempty"`
	GroupID domain.GroupID `json:"group_id"`
}

type Failure struct {
	Ref string `json:"ref,omitempty"`
	transport.ErrorBody
}

type connection struct {
	id       domain.ConnectionID
	identity domain.Identity
	conn     *websocket.Conn
	queue    *sink.QueueSink
	limiter  *rate.Limiter
	handler  *Handler
	log      *slog.Logger
}

// readPump owns the reads. Leaving it disconnects the connection, which
// closes the queue and lets the write pump flush and close the socket.
func (c *connection) readPump(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Websocket read pump panicked", "panic", r)
		}
		c.handler.router.Disconnect(c.id)
		c.handler.forget(c.id)
		c.handler.wg.Done()
	}()

	if c.handler.options.MaxFrameBytes > 0 {
		c.conn.SetReadLimit(c.handler.options.MaxFrameBytes)
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("Initial read deadline not set", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		// Decoded first so a refused frame is still answered under its ref.
		var in Inbound
		decodeErr := json.Unmarshal(raw, &in)
		if !c.limiter.Allow() {
			c.log.Debug("Rate limit exceeded, frame discarded", "event", in.Event, "ref", in.Ref)
			c.fail(in.Ref, errors.ErrRateLimited)
			continue
		}
		if decodeErr != nil {
			c.fail("", fmt.Errorf("%w: %s", errors.ErrInvalidPayload, decodeErr))
			continue
		}
		c.dispatch(ctx, in)
	}
}

// writePump is the only writer of the socket: replies and room messages
// leave in the order they were queued.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Websocket close failed", "error", err)
		}
		c.handler.wg.Done()
	}()

	for {
		select {
		case evt, ok := <-c.queue.C():
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				c.log.Debug("Websocket write failed", "event", evt.Event, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) dispatch(ctx context.Context, in Inbound) {
	switch in.Event {
	case domain.EventJoinGroup:
		c.join(ctx, in)
	case domain.EventLeaveGroup:
		c.leave(in)
	case domain.EventNewMessage:
		c.submit(ctx, in)
	default:
		c.fail(in.Ref, fmt.Errorf("%w: unknown event %q", errors.ErrInvalidPayload, in.Event))
	}
}

func (c *connection) join(ctx context.Context, in Inbound) {
	groupID, err := parseGroup(in.Data)
	if err != nil {
		c.fail(in.Ref, err)
		return
	}
	if err = c.handler.router.Join(ctx, c.id, groupID); err != nil {
		c.fail(in.Ref, err)
		return
	}
	c.send(domain.Outbound{Event: domain.EventJoined, GroupID: groupID, Data: Membership{Ref: in.Ref, GroupID: groupID}})
}

func (c *connection) leave(in Inbound) {
	groupID, err := parseGroup(in.Data)
	if err != nil {
		c.fail(in.Ref, err)
		return
	}
	c.handler.router.Leave(c.id, groupID)
	c.send(domain.Outbound{Event: domain.EventLeft, GroupID: groupID, Data: Membership{Ref: in.Ref, GroupID: groupID}})
}

// submit lets guests pick their display name, users always post under theirs.
func (c *connection) submit(ctx context.Context, in Inbound) {
	var cmd domain.SubmitCommand
	if err := json.Unmarshal(in.Data, &cmd); err != nil {
		c.fail(in.Ref, fmt.Errorf("%w: %s", errors.ErrInvalidPayload, err))
		return
	}
	if !c.identity.IsGuest() || strings.TrimSpace(cmd.Sender) == "" {
		cmd.Sender = c.identity.Name
	}

	groupID, err := domain.ParseGroupID(cmd.GroupID)
	if err != nil {
		c.fail(in.Ref, err)
		return
	}
	allowed, err := c.handler.authorizer.Authorize(ctx, c.identity, groupID)
	if err != nil {
		c.fail(in.Ref, err)
		return
	}
	if !allowed {
		c.fail(in.Ref, fmt.Errorf("%w: %s", errors.ErrUnauthorized, groupID))
		return
	}

	receipt, err := c.handler.ingest.Submit(ctx, cmd)
	if err != nil {
		c.fail(in.Ref, err)
		return
	}
	c.send(domain.Outbound{Event: domain.EventAck, GroupID: groupID, Data: Ack{
		Ref:       in.Ref,
		MessageID: receipt.Message.ID,
		Sequence:  receipt.Message.Sequence,
		Stage:     receipt.Stage,
		Delivery:  receipt.Delivery,
	}})
}

func (c *connection) fail(ref string, err error) {
	c.log.Debug("Websocket request failed", "ref", ref, "error", err)
	c.send(domain.Outbound{Event: domain.EventError, Data: Failure{Ref: ref, ErrorBody: transport.NewErrorBody(err)}})
}

// send queues a reply behind the room messages already waiting.
// A connection that can't keep up with its own replies is dropped.
func (c *connection) send(evt domain.Outbound) {
	err := c.queue.Deliver(evt)
	if errors.Is(err, errors.ErrSinkFull) {
		c.log.Warn("Reply dropped, connection too slow", "event", evt.Event)
		c.handler.router.Disconnect(c.id)
	}
}

func (c *connection) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Frame exceeded maximum size", "max_bytes", c.handler.options.MaxFrameBytes)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Info("Websocket disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug("Websocket connection closed", "error", err)
	default:
		c.log.Info("Websocket read error", "error", err)
	}
}

// parseGroup accepts the bare group id ("lobby") or {"group_id": "lobby"}.
func parseGroup(data json.RawMessage) (domain.GroupID, error) {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var payload struct {
			GroupID string `json:"group_id"`
		}
		if err = json.Unmarshal(data, &payload); err != nil {
			return "", fmt.Errorf("%w: a group id is expected", errors.ErrInvalidPayload)
		}
		raw = payload.GroupID
	}
	return domain.ParseGroupID(raw)
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
