// Package client is a Go chat client: one websocket for the rooms and the
// HTTP API for history, reconciled per room into a projection.Transcript.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"quorum/domain"
	"quorum/projection"
	"quorum/transport"
	"quorum/transport/ws"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Options struct {
	BaseURL    string // http(s)://host:port
	Token      string // empty to connect as a guest
	Name       string // guest display name
	Log        *slog.Logger
	HTTPClient *http.Client
	// OnMessage sees every live message, whatever its room
	OnMessage func(domain.Message)
}

// RemoteError is a request the server refused.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server replied %d: %s", e.Status, e.Message)
}

type frame struct {
	Event   domain.EventName `json:"event"`
	GroupID domain.GroupID   `json:"group_id"`
	Data    json.RawMessage  `json:"data"`
}

type Client struct {
	log     *slog.Logger
	options Options
	base    *url.URL
	http    *http.Client
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu          sync.Mutex
	transcripts map[domain.GroupID]*projection.Transcript
	pending     map[string]chan frame
	refs        atomic.Uint64

	done chan struct{}
	err  error
}

// Dial opens the websocket. Rooms are entered with Join.
func Dial(ctx context.Context, options Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(options.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", options.BaseURL, err)
	}
	if options.Log == nil {
		options.Log = slog.Default()
	}
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{
		log:         options.Log,
		options:     options,
		base:        base,
		http:        options.HTTPClient,
		transcripts: make(map[domain.GroupID]*projection.Transcript),
		pending:     make(map[string]chan frame),
		done:        make(chan struct{}),
	}

	wsURL := *base
	wsURL.Scheme = lo.Ternary(base.Scheme == "https", "wss", "ws")
	wsURL.Path = base.Path + "/ws"
	wsURL.RawQuery = c.identityQuery().Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), c.header())
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		if resp != nil {
			return nil, &RemoteError{Status: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("could not connect to %s: %w", wsURL.String(), err)
	}
	c.conn = conn
	go c.readLoop()
	return c, nil
}

// Join subscribes to groupID first, then fetches its history: messages
// delivered live meanwhile are buffered and merged without duplicates.
// Joining a room already joined catches up on what was missed instead.
func (c *Client) Join(ctx context.Context, groupID domain.GroupID) (*projection.Transcript, error) {
	c.mu.Lock()
	if t, ok := c.transcripts[groupID]; ok {
		c.mu.Unlock()
		if _, err := c.CatchUp(ctx, groupID); err != nil {
			return nil, err
		}
		return t, nil
	}
	t := projection.NewTranscript(groupID)
	c.transcripts[groupID] = t
	c.mu.Unlock()

	if _, err := c.request(ctx, domain.EventJoinGroup, groupID); err != nil {
		c.forget(groupID)
		return nil, err
	}
	history, err := c.History(ctx, groupID, 0)
	if err != nil {
		c.forget(groupID)
		_, _ = c.request(ctx, domain.EventLeaveGroup, groupID)
		return nil, err
	}
	t.OnHistory(history)
	c.log.Debug("Room joined", "group_id", groupID, "history", len(history))
	return t, nil
}

// Leave unsubscribes. The transcript handed out by Join is emptied.
func (c *Client) Leave(ctx context.Context, groupID domain.GroupID) error {
	c.forget(groupID)
	_, err := c.request(ctx, domain.EventLeaveGroup, groupID)
	return err
}

// CatchUp merges the messages persisted after the last one the transcript
// holds, for example those dropped while the connection was saturated.
func (c *Client) CatchUp(ctx context.Context, groupID domain.GroupID) (int, error) {
	t, ok := c.Transcript(groupID)
	if !ok {
		return 0, fmt.Errorf("room %s not joined", groupID)
	}
	missed, err := c.History(ctx, groupID, t.LastSequence())
	if err != nil {
		return 0, err
	}
	t.OnHistory(missed)
	return len(missed), nil
}

// Send posts over the websocket and returns once the message is durable.
func (c *Client) Send(ctx context.Context, groupID domain.GroupID, body, attachment string) (ws.Ack, error) {
	f, err := c.request(ctx, domain.EventNewMessage, domain.SubmitCommand{
		GroupID:    groupID.String(),
		Sender:     c.options.Name,
		Body:       body,
		Attachment: attachment,
	})
	if err != nil {
		return ws.Ack{}, err
	}
	var ack ws.Ack
	if err = json.Unmarshal(f.Data, &ack); err != nil {
		return ws.Ack{}, fmt.Errorf("decode ack: %w", err)
	}
	return ack, nil
}

// History is the HTTP history query: messages after since, oldest first.
func (c *Client) History(ctx context.Context, groupID domain.GroupID, since uint64) ([]domain.Message, error) {
	query := c.identityQuery()
	if since > 0 {
		query.Set("since", strconv.FormatUint(since, 10))
	}
	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	err := c.get(ctx, "/api/groups/"+url.PathEscape(groupID.String())+"/messages", query, &body)
	return body.Messages, err
}

// Search runs a full text query in groupID.
func (c *Client) Search(ctx context.Context, groupID domain.GroupID, q string) ([]domain.Message, error) {
	query := c.identityQuery()
	query.Set("q", q)
	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	err := c.get(ctx, "/api/groups/"+url.PathEscape(groupID.String())+"/search", query, &body)
	return body.Messages, err
}

func (c *Client) Transcript(groupID domain.GroupID) (*projection.Transcript, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.transcripts[groupID]
	return t, ok
}

// Done is closed once the connection is gone, Err tells why.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close says goodbye and waits for the read loop.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.err = err
			c.log.Debug("Client read loop stopped", "error", err)
			return
		}
		if f.Event == domain.EventNewMessage {
			c.onMessage(f)
			continue
		}

		var reply struct {
			Ref string `json:"ref"`
		}
		_ = json.Unmarshal(f.Data, &reply)
		if f.Event == domain.EventLeft && reply.Ref == "" {
			// Taken out of the room by the server
			c.log.Info("Evicted from room", "group_id", f.GroupID)
			c.forget(f.GroupID)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[reply.Ref]
		delete(c.pending, reply.Ref)
		c.mu.Unlock()
		if !ok {
			c.log.Debug("Unsolicited reply", "event", f.Event, "ref", reply.Ref)
			continue
		}
		ch <- f
	}
}

func (c *Client) onMessage(f frame) {
	var msg domain.Message
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		c.log.Warn("Undecodable message", "error", err)
		return
	}
	if t, ok := c.Transcript(msg.GroupID); ok {
		t.OnLive(msg)
	}
	if c.options.OnMessage != nil {
		c.options.OnMessage(msg)
	}
}

// request sends one frame and waits for the reply carrying the same ref.
func (c *Client) request(ctx context.Context, evt domain.EventName, data any) (frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return frame{}, err
	}
	ref := strconv.FormatUint(c.refs.Add(1), 10)
	reply := make(chan frame, 1)
	c.mu.Lock()
	c.pending[ref] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(ws.Inbound{Event: evt, Ref: ref, Data: raw})
	c.writeMu.Unlock()
	if err != nil {
		return frame{}, fmt.Errorf("send %s: %w", evt, err)
	}

	select {
	case f := <-reply:
		if f.Event == domain.EventError {
			var failure ws.Failure
			_ = json.Unmarshal(f.Data, &failure)
			return f, &RemoteError{Status: failure.Status, Message: failure.Error}
		}
		return f, nil
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-c.done:
		return frame{}, fmt.Errorf("connection closed: %w", c.err)
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := *c.base
	target.Path = c.base.Path + path
	target.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	for k, v := range c.header() {
		req.Header[k] = v
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var failure transport.ErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &RemoteError{Status: resp.StatusCode, Message: failure.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) forget(groupID domain.GroupID) {
	c.mu.Lock()
	t, ok := c.transcripts[groupID]
	delete(c.transcripts, groupID)
	c.mu.Unlock()
	if ok {
		t.Reset()
	}
}

func (c *Client) identityQuery() url.Values {
	query := url.Values{}
	if c.options.Token == "" && c.options.Name != "" {
		query.Set("name", c.options.Name)
	}
	return query
}

func (c *Client) header() http.Header {
	header := http.Header{}
	if c.options.Token != "" {
		header.Set("Authorization", "Bearer "+c.options.Token)
	}
	return header
}
