package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/internal/nostr"
	"github.com/zapempire/economy-engine/pkg/models"
)

const (
	reconnectMinDelay = 1 * time.Second
	reconnectMaxDelay = 30 * time.Second
	writeWait         = 5 * time.Second
	dedupLimit        = 10_000
	eventBuffer       = 256
)

// ErrNotConnected is returned by Publish when no connection is up. Publish
// never retries; callers decide whether the action is worth repeating.
var ErrNotConnected = errors.New("relay: not connected")

// Incoming is one event yielded by the listen stream, paired with the
// subscription that matched it.
type Incoming struct {
	SubID string
	Event *models.Event
}

type subscription struct {
	id      string
	filters []models.Filter
}

// Client maintains a single durable websocket connection to the relay.
// Reconnection, ordered re-subscription, and id de-duplication are handled
// internally; consumers just range over Events(). Incoming signatures are
// not validated here — that is the caller's job.
type Client struct {
	url  string
	keys *nostr.KeyPair
	log  *logrus.Entry

	mu     sync.Mutex // guards conn and all writes to it
	conn   *websocket.Conn
	closed atomic.Bool

	subMu sync.Mutex
	subs  []subscription // registration order, replayed on reconnect

	seenMu sync.Mutex
	seen   map[string]struct{}
	order  []string // insertion order backing the trim-oldest-half policy

	events chan Incoming

	eventsReceived    atomic.Int64
	duplicatesDropped atomic.Int64
	reconnects        atomic.Int64
}

// NewClient builds a client for the given relay URL. Events published
// without a signature are signed with keys.
func NewClient(url string, keys *nostr.KeyPair, log *logrus.Entry) *Client {
	return &Client{
		url:    url,
		keys:   keys,
		log:    log,
		seen:   make(map[string]struct{}),
		events: make(chan Incoming, eventBuffer),
	}
}

// Connect dials the relay, retrying with 1s→30s doubling backoff until it
// succeeds or ctx is cancelled. Active subscriptions are re-sent in
// registration order after every successful dial.
func (c *Client) Connect(ctx context.Context) error {
	delay := reconnectMinDelay
	for {
		if c.closed.Load() {
			return ErrNotConnected
		}
		err := c.dial(ctx)
		if err == nil {
			return nil
		}
		c.log.Warnf("[Relay] Connect to %s failed: %v (retry in %s)", c.url, err, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.log.Infof("[Relay] Connected to %s", c.url)
	c.replaySubscriptions()
	return nil
}

// replaySubscriptions re-sends every active REQ in the order the
// subscriptions were first registered.
func (c *Client) replaySubscriptions() {
	c.subMu.Lock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	for _, s := range subs {
		if err := c.sendReq(s); err != nil {
			c.log.Warnf("[Relay] Re-subscribe %s failed: %v", s.id, err)
			return
		}
	}
	if len(subs) > 0 {
		c.log.Infof("[Relay] Replayed %d subscriptions", len(subs))
	}
}

// Run is the read pump. It reconnects transparently on mid-stream loss and
// exits when ctx is cancelled or Disconnect is called, closing the Events
// stream on the way out.
func (c *Client) Run(ctx context.Context) {
	defer close(c.events)

	for {
		if ctx.Err() != nil || c.closed.Load() {
			return
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			if err := c.Connect(ctx); err != nil {
				return
			}
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || c.closed.Load() {
				return
			}
			c.log.Warnf("[Relay] Connection lost: %v", err)
			c.dropConn()
			c.reconnects.Add(1)
			if err := c.Connect(ctx); err != nil {
				return
			}
			continue
		}
		c.handleFrame(ctx, raw)
	}
}

func (c *Client) handleFrame(ctx context.Context, raw []byte) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) == 0 {
		c.log.Warnf("[Relay] Unparseable frame: %.80s", raw)
		return
	}
	var frameType string
	if err := json.Unmarshal(parts[0], &frameType); err != nil {
		c.log.Warnf("[Relay] Frame with non-string type: %.80s", raw)
		return
	}

	switch frameType {
	case "EVENT":
		if len(parts) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return
		}
		var ev models.Event
		if err := json.Unmarshal(parts[2], &ev); err != nil {
			c.log.Warnf("[Relay] Bad event on %s: %v", subID, err)
			return
		}
		if !c.markSeen(ev.ID) {
			c.duplicatesDropped.Add(1)
			return
		}
		c.eventsReceived.Add(1)
		select {
		case c.events <- Incoming{SubID: subID, Event: &ev}:
		case <-ctx.Done():
		}

	case "OK":
		if len(parts) >= 3 {
			var id string
			var accepted bool
			_ = json.Unmarshal(parts[1], &id)
			_ = json.Unmarshal(parts[2], &accepted)
			if !accepted {
				msg := ""
				if len(parts) >= 4 {
					_ = json.Unmarshal(parts[3], &msg)
				}
				c.log.Warnf("[Relay] Event %.12s rejected: %s", id, msg)
			}
		}

	case "EOSE":
		// End of stored events; live stream continues.

	case "NOTICE":
		msg := ""
		if len(parts) >= 2 {
			_ = json.Unmarshal(parts[1], &msg)
		}
		c.log.Warnf("[Relay] NOTICE: %s", msg)

	default:
		c.log.Debugf("[Relay] Ignoring frame type %q", frameType)
	}
}

// markSeen records an event id, reporting false for duplicates. The window
// holds at most dedupLimit ids; when full, the older half is discarded.
func (c *Client) markSeen(id string) bool {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()

	if _, dup := c.seen[id]; dup {
		return false
	}
	if len(c.order) >= dedupLimit {
		half := len(c.order) / 2
		for _, old := range c.order[:half] {
			delete(c.seen, old)
		}
		c.order = append(c.order[:0], c.order[half:]...)
	}
	c.seen[id] = struct{}{}
	c.order = append(c.order, id)
	return true
}

// Publish signs the event if needed and sends it. A send failure is
// returned as-is; there is no retry at this layer.
func (c *Client) Publish(ctx context.Context, ev *models.Event) error {
	if ev.Sig == "" {
		if err := c.keys.Sign(ev); err != nil {
			return fmt.Errorf("sign outgoing event: %v", err)
		}
	}
	return c.writeFrame([]interface{}{"EVENT", ev})
}

// Subscribe registers (or replaces) a subscription and sends its REQ.
// The registration survives reconnects.
func (c *Client) Subscribe(ctx context.Context, subID string, filters ...models.Filter) error {
	sub := subscription{id: subID, filters: filters}

	c.subMu.Lock()
	replaced := false
	for i := range c.subs {
		if c.subs[i].id == subID {
			c.subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		c.subs = append(c.subs, sub)
	}
	c.subMu.Unlock()

	return c.sendReq(sub)
}

// Unsubscribe closes a subscription and forgets it.
func (c *Client) Unsubscribe(ctx context.Context, subID string) error {
	c.subMu.Lock()
	for i := range c.subs {
		if c.subs[i].id == subID {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.subMu.Unlock()

	return c.writeFrame([]interface{}{"CLOSE", subID})
}

func (c *Client) sendReq(s subscription) error {
	frame := make([]interface{}, 0, 2+len(s.filters))
	frame = append(frame, "REQ", s.id)
	for _, f := range s.filters {
		frame = append(frame, f)
	}
	return c.writeFrame(frame)
}

// Events is the listen stream. It never yields the same event id twice
// while the id remains in the dedup window, and it closes when Run exits.
func (c *Client) Events() <-chan Incoming {
	return c.events
}

// Disconnect shuts the connection down for good; Run exits rather than
// reconnecting.
func (c *Client) Disconnect() {
	c.closed.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) dropConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// writeFrame marshals a wire frame compactly (UTF-8 preserved) and writes
// it under the write lock with a bounded deadline.
func (c *Client) writeFrame(frame []interface{}) error {
	data, err := marshalFrame(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("relay write: %v", err)
	}
	return nil
}

func marshalFrame(frame []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(frame); err != nil {
		return nil, fmt.Errorf("marshal frame: %v", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Stats reports lifetime counters for status lines and tests.
func (c *Client) Stats() (received, duplicates, reconnects int64) {
	return c.eventsReceived.Load(), c.duplicatesDropped.Load(), c.reconnects.Load()
}
