package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
)

// writeTimeout bounds every outbound frame write, mirroring the teacher's
// websocket.go 5-second context budget on wsjson.Write.
const writeTimeout = 5 * time.Second

// subscription is one client-registered (sub_id -> filters) pair, per
// spec.md §3.
type subscription struct {
	filters nostr.Filters
}

// wsConn wraps one accepted connection: its socket, remote IP, and its own
// subscription table, accessed only by that connection's task per spec.md
// §5's "Subscription table... accessed only by that connection's task".
// Generalizes the teacher's WSClient (pubkeys set) into a filter table.
type wsConn struct {
	conn   *websocket.Conn
	ip     string
	mu     sync.Mutex
	subs   map[string]subscription
	cancel context.CancelFunc
}

// Hub tracks every connected client and fans broadcasts out to all of
// them, generalizing the teacher's WSHub from a pubkey-subscriber list to
// a raw broadcast-to-all-connections strategy, per spec.md §4.8's
// "implementations MAY choose either strategy" -- broadcast-to-all was
// selected in SPEC_FULL.md's Open Question Decisions.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsConn]bool

	store    *EventStore
	limiter  *RateLimiter
	handler  *RequestHandler
	identity RelayIdentity
	maxBytes int
	log      *logrus.Logger
}

// NewHub wires the relay connection loop to its collaborators.
func NewHub(store *EventStore, limiter *RateLimiter, handler *RequestHandler, identity RelayIdentity, maxBytes int, log *logrus.Logger) *Hub {
	return &Hub{
		clients:  make(map[*wsConn]bool),
		store:    store,
		limiter:  limiter,
		handler:  handler,
		identity: identity,
		maxBytes: maxBytes,
		log:      log,
	}
}

func (h *Hub) register(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Broadcast sends ev, framed as ["EVENT", ev], to every connected client,
// per spec.md §4.8's simpler broadcast-to-all strategy.
func (h *Hub) Broadcast(ev *nostr.Event) {
	h.mu.Lock()
	clients := make([]*wsConn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		frame := []interface{}{"EVENT", ev}
		if err := c.writeJSON(frame); err != nil {
			h.log.WithError(err).Debug("broadcast write failed, dropping connection")
			c.cancel()
		}
	}
}

func (c *wsConn) writeJSON(v interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, v)
}

// ServeHTTP upgrades the connection and runs its read loop, following the
// teacher's handleWebSocket structure (Accept, register, deferred
// Unregister+CloseNow, welcome frame, read loop).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.WithError(err).Warn("websocket accept failed")
		return
	}
	// coder/websocket defaults to a 32768-byte read limit, well under
	// MAX_EVENT_BYTES (default 64000); without raising it, frames the spec
	// requires to admit would instead fail the read and drop the connection.
	// A small margin above maxBytes leaves room for the wire envelope
	// (the "EVENT"/frame-array wrapping) around the event payload itself.
	c.SetReadLimit(int64(h.maxBytes) + 1024)

	ctx, cancel := context.WithCancel(context.Background())
	conn := &wsConn{
		conn:   c,
		ip:     remoteIP(r),
		subs:   make(map[string]subscription),
		cancel: cancel,
	}

	h.register(conn)
	defer func() {
		h.unregister(conn)
		c.CloseNow()
	}()

	_ = conn.writeJSON([]interface{}{"NOTICE", "connected"})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var raw json.RawMessage
		if err := wsjson.Read(ctx, c, &raw); err != nil {
			return
		}

		if len(raw) > h.maxBytes {
			_ = conn.writeJSON([]interface{}{"NOTICE", "payload too large"})
			continue
		}

		h.dispatch(ctx, conn, raw)
	}
}

// dispatch decodes one frame's leading element and routes it, per
// spec.md §4.8.
func (h *Hub) dispatch(ctx context.Context, conn *wsConn, raw json.RawMessage) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) == 0 {
		return
	}

	var kind string
	if err := json.Unmarshal(frame[0], &kind); err != nil {
		return
	}

	switch kind {
	case "EVENT":
		if len(frame) < 2 {
			return
		}
		h.handleEvent(ctx, conn, frame[1])
	case "REQ":
		h.handleReq(conn, frame)
	case "CLOSE":
		h.handleClose(conn, frame)
	case "COUNT":
		h.handleCount(conn, frame)
	default:
		// Any other frame type is ignored, per spec.md §4.8.
	}
}

func (h *Hub) handleEvent(ctx context.Context, conn *wsConn, raw json.RawMessage) {
	var ev nostr.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		_ = conn.writeJSON([]interface{}{"NOTICE", "bad envelope"})
		return
	}

	if err := verifyEvent(&ev); err != nil {
		_ = conn.writeJSON([]interface{}{"OK", ev.ID, false, "invalid: bad sig or id"})
		return
	}

	if reason := h.limiter.Allow(conn.ip, ev.PubKey); reason != RateLimitNone {
		_ = conn.writeJSON([]interface{}{"OK", ev.ID, false, string(reason)})
		return
	}

	h.store.Add(&ev)
	_ = conn.writeJSON([]interface{}{"OK", ev.ID, true, "accepted"})
	h.Broadcast(&ev)

	if ev.Kind == KindPriceRequest {
		go h.handler.Handle(context.Background(), &ev)
	}
}

func (h *Hub) handleReq(conn *wsConn, frame []json.RawMessage) {
	if len(frame) < 2 {
		return
	}
	var subID string
	if err := json.Unmarshal(frame[1], &subID); err != nil {
		return
	}

	filters := make(nostr.Filters, 0, len(frame)-2)
	for _, raw := range frame[2:] {
		var f nostr.Filter
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		filters = append(filters, f)
	}

	conn.mu.Lock()
	conn.subs[subID] = subscription{filters: filters}
	conn.mu.Unlock()

	for _, ev := range h.store.Query(filters) {
		_ = conn.writeJSON([]interface{}{"EVENT", subID, ev})
	}
	_ = conn.writeJSON([]interface{}{"EOSE", subID})
}

// handleCount answers a supplemental ["COUNT", sub_id, filter, ...] frame
// with ["COUNT", sub_id, {"count": N}], running the same filter walk as
// handleReq's backfill without materializing matched events.
func (h *Hub) handleCount(conn *wsConn, frame []json.RawMessage) {
	if len(frame) < 2 {
		return
	}
	var subID string
	if err := json.Unmarshal(frame[1], &subID); err != nil {
		return
	}

	filters := make(nostr.Filters, 0, len(frame)-2)
	for _, raw := range frame[2:] {
		var f nostr.Filter
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		filters = append(filters, f)
	}

	_ = conn.writeJSON([]interface{}{"COUNT", subID, map[string]int64{"count": h.store.Count(filters)}})
}

func (h *Hub) handleClose(conn *wsConn, frame []json.RawMessage) {
	if len(frame) < 2 {
		return
	}
	var subID string
	if err := json.Unmarshal(frame[1], &subID); err != nil {
		return
	}
	conn.mu.Lock()
	delete(conn.subs, subID)
	conn.mu.Unlock()
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
