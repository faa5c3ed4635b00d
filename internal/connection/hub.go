package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/metrics"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/router"
)

const subscriberName = "stream-hub"

// EventSource is the router side the hub consumes.
type EventSource interface {
	Subscribe(name string) *router.Subscription
	Unsubscribe(name string)
}

// TickerSet reports whether a ticker exists.
type TickerSet interface {
	Has(ticker string) bool
}

// HubStats provides statistics about the hub.
type HubStats struct {
	Clients   int
	Delivered int64
	Dropped   int64 // clients disconnected for falling behind
}

// Hub serves the live feed to websocket clients.
type Hub struct {
	cfg    HubConfig
	source EventSource
	known  TickerSet
	logger *slog.Logger

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	clients map[string]*hubClient
	closed  bool

	lastTick  atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// hubClient is one connected websocket peer.
type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	filterMu sync.RWMutex
	all      bool
	tickers  map[string]struct{}
}

// NewHub creates a Hub. known may be nil to accept any ticker.
func NewHub(cfg HubConfig, source EventSource, known TickerSet, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultHubConfig().SendBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultHubConfig().PingInterval
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 2 * cfg.PingInterval
	}

	return &Hub{
		cfg:    cfg,
		source: source,
		known:  known,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*hubClient),
	}
}

// Start subscribes to the event source and begins fan-out.
func (h *Hub) Start(ctx context.Context) error {
	sub := h.source.Subscribe(subscriberName)
	if sub == nil {
		return ErrHubClosed
	}
	h.mu.Lock()
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.mu.Unlock()

	h.wg.Add(1)
	go h.fanoutLoop(sub.Events)

	h.logger.Info("stream hub started",
		"ping_interval", h.cfg.PingInterval,
		"send_buffer", h.cfg.SendBuffer,
	)
	return nil
}

// Stop disconnects every client and waits for hub goroutines.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*hubClient)
	h.mu.Unlock()

	h.source.Unsubscribe(subscriberName)
	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "server shutting down")
		metrics.StreamClients.Dec()
	}
	h.mu.RLock()
	cancel := h.cancel
	h.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("stream hub stopped", "delivered", h.delivered.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()

	return HubStats{
		Clients:   n,
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// ServeHTTP upgrades the request and registers the client. The optional
// query parameter "tickers" (comma separated) sets the initial filter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed || h.ctx == nil
	h.mu.RUnlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	initial := splitTickers(r.URL.Query().Get("tickers"))
	if bad := h.unknown(initial); len(bad) > 0 {
		http.Error(w, fmt.Sprintf("unknown tickers: %s", strings.Join(bad, ",")), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &hubClient{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		done:    make(chan struct{}),
		all:     len(initial) == 0,
		tickers: make(map[string]struct{}),
	}
	for _, t := range initial {
		c.tickers[t] = struct{}{}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	h.clients[c.id] = c
	h.wg.Add(2)
	h.mu.Unlock()
	metrics.StreamClients.Inc()

	h.logger.Debug("stream client connected", "client_id", c.id, "remote", r.RemoteAddr, "tickers", initial)

	h.reply(c, 0, TypeWelcome, WelcomeMsg{ClientID: c.id, Tick: h.lastTick.Load()})

	go h.writeLoop(c)
	go h.readLoop(c)
}

// fanoutLoop delivers router events until the subscription is closed.
func (h *Hub) fanoutLoop(events *router.GrowableBuffer[router.Event]) {
	defer h.wg.Done()

	for {
		ev, ok := events.Receive()
		if !ok {
			return
		}
		if ev.Tick > h.lastTick.Load() {
			h.lastTick.Store(ev.Tick)
		}

		data, err := json.Marshal(NewDataMessage(ev))
		if err != nil {
			h.logger.Error("failed to encode event", "ticker", ev.Ticker, "error", err)
			continue
		}

		var slow []*hubClient
		h.mu.RLock()
		for _, c := range h.clients {
			if !c.wants(ev.Ticker) {
				continue
			}
			if !c.enqueue(data) {
				slow = append(slow, c)
				continue
			}
			h.delivered.Add(1)
		}
		h.mu.RUnlock()

		for _, c := range slow {
			h.dropped.Add(1)
			h.logger.Warn("stream client too slow, disconnecting", "client_id", c.id)
			h.remove(c, websocket.ClosePolicyViolation, "send buffer full")
		}
		if n := len(slow); n > 0 {
			metrics.EventsPublished.WithLabelValues("stream_dropped").Add(float64(n))
		}
	}
}

// writeLoop is the only writer of c.conn.
func (h *Hub) writeLoop(c *hubClient) {
	defer h.wg.Done()

	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("stream write failed", "client_id", c.id, "error", err)
				h.remove(c, websocket.CloseAbnormalClosure, "")
				return
			}
			metrics.EventsPublished.WithLabelValues("stream").Inc()
		case <-ping.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				h.logger.Debug("failed to send ping", "client_id", c.id, "error", err)
				h.remove(c, websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

// readLoop handles client commands and detects dead peers.
func (h *Hub) readLoop(c *hubClient) {
	defer h.wg.Done()
	defer h.remove(c, websocket.CloseNormalClosure, "")

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("stream client read error", "client_id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.reply(c, 0, TypeError, ErrorMsg{Code: "bad_request", Message: "invalid command json"})
			continue
		}
		h.handleCommand(c, cmd)
	}
}

func (h *Hub) handleCommand(c *hubClient, cmd Command) {
	tickers := normalizeTickers(cmd.Params.Tickers)

	switch cmd.Cmd {
	case CmdSubscribe:
		if bad := h.unknown(tickers); len(bad) > 0 {
			h.reply(c, cmd.ID, TypeError, ErrorMsg{
				Code:    "not_found",
				Message: "unknown tickers: " + strings.Join(bad, ","),
			})
			return
		}
		h.reply(c, cmd.ID, TypeSubscribed, SubscribedMsg{Tickers: c.subscribe(tickers)})
	case CmdUnsubscribe:
		h.reply(c, cmd.ID, TypeUnsubscribed, SubscribedMsg{Tickers: c.unsubscribe(tickers)})
	default:
		h.reply(c, cmd.ID, TypeError, ErrorMsg{Code: "bad_request", Message: fmt.Sprintf("unknown command %q", cmd.Cmd)})
	}
}

func (h *Hub) reply(c *hubClient, id int64, typ string, msg any) {
	raw, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode response", "type", typ, "error", err)
		return
	}
	data, err := json.Marshal(Response{ID: id, Type: typ, Msg: raw})
	if err != nil {
		h.logger.Error("failed to encode response", "type", typ, "error", err)
		return
	}
	if !c.enqueue(data) {
		h.remove(c, websocket.ClosePolicyViolation, "send buffer full")
	}
}

// remove unregisters c and closes its connection. Safe to call repeatedly.
func (h *Hub) remove(c *hubClient, code int, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.close(code, reason)
	if ok {
		metrics.StreamClients.Dec()
		h.logger.Debug("stream client disconnected", "client_id", c.id)
	}
}

func (h *Hub) unknown(tickers []string) []string {
	if h.known == nil {
		return nil
	}
	var bad []string
	for _, t := range tickers {
		if !h.known.Has(t) {
			bad = append(bad, t)
		}
	}
	return bad
}

// wants reports whether ticker passes the client's filter.
func (c *hubClient) wants(ticker string) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	if c.all {
		return true
	}
	_, ok := c.tickers[ticker]
	return ok
}

// subscribe narrows the feed to tickers, or widens it to every ticker when
// tickers is empty. Returns the resulting explicit filter.
func (c *hubClient) subscribe(tickers []string) []string {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()

	if len(tickers) == 0 {
		c.all = true
		clear(c.tickers)
		return []string{}
	}
	c.all = false
	for _, t := range tickers {
		c.tickers[t] = struct{}{}
	}
	return c.filterLocked()
}

// unsubscribe removes tickers from the explicit filter. An empty list stops
// the feed entirely.
func (c *hubClient) unsubscribe(tickers []string) []string {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()

	if len(tickers) == 0 {
		c.all = false
		clear(c.tickers)
		return []string{}
	}
	for _, t := range tickers {
		delete(c.tickers, t)
	}
	return c.filterLocked()
}

func (c *hubClient) filterLocked() []string {
	out := make([]string, 0, len(c.tickers))
	for t := range c.tickers {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// enqueue queues data without blocking. False means the queue is full or
// the client is gone.
func (c *hubClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *hubClient) close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		if code != websocket.CloseAbnormalClosure {
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason),
				time.Now().Add(time.Second),
			)
		}
		c.conn.Close()
	})
}

func splitTickers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return normalizeTickers(strings.Split(s, ","))
}

func normalizeTickers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
