package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client tails the live feed of a Hub.
type Client interface {
	// Connect dials the hub. The initial ticker filter is sent as a query
	// parameter so the first frames are already filtered.
	Connect(ctx context.Context) error

	// Close sends a close frame and releases the connection.
	Close() error

	// Subscribe narrows the feed to tickers (empty = every ticker).
	// Returns the command ID; the answer arrives on Frames.
	Subscribe(tickers ...string) (int64, error)

	// Unsubscribe removes tickers from the feed (empty = everything).
	Unsubscribe(tickers ...string) (int64, error)

	// Frames returns decoded events and command answers in arrival order.
	Frames() <-chan Frame

	// Errors receives at most one error, when the connection is lost.
	Errors() <-chan error

	// ClientID is the id assigned by the hub, empty before the welcome.
	ClientID() string

	// IsConnected returns current connection state.
	IsConnected() bool

	// Stats returns frame counters.
	Stats() ClientStats
}

type feedClient struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	frames chan Frame
	errors chan error
	done   chan struct{}

	cmdID    atomic.Int64
	received atomic.Int64
	dropped  atomic.Int64
	invalid  atomic.Int64

	mu        sync.RWMutex
	connected bool
	closed    bool
	clientID  string
}

// NewClient creates a Client. Zero config fields take their defaults.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	return &feedClient{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.BufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (c *feedClient) Connect(ctx context.Context) error {
	c.mu.RLock()
	closed, connected := c.closed, c.connected
	c.mu.RUnlock()
	if closed {
		return ErrAlreadyClosed
	}
	if connected {
		return nil
	}

	target, err := dialURL(c.cfg.URL, c.cfg.Tickers)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, target, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		if resp != nil {
			return &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return err
	}

	// Every frame and every hub ping pushes the idle deadline out.
	conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
	})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)

	c.logger.Debug("feed connected", "url", target)
	return nil
}

func (c *feedClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (c *feedClient) Subscribe(tickers ...string) (int64, error) {
	return c.command(CmdSubscribe, tickers)
}

func (c *feedClient) Unsubscribe(tickers ...string) (int64, error) {
	return c.command(CmdUnsubscribe, tickers)
}

func (c *feedClient) command(name string, tickers []string) (int64, error) {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()
	if !connected {
		return 0, ErrNotConnected
	}

	id := c.cmdID.Add(1)
	cmd := Command{ID: id, Cmd: name, Params: CommandParams{Tickers: tickers}}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(cmd); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *feedClient) Frames() <-chan Frame { return c.frames }

func (c *feedClient) Errors() <-chan error { return c.errors }

func (c *feedClient) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

func (c *feedClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *feedClient) Stats() ClientStats {
	return ClientStats{
		Received: c.received.Load(),
		Dropped:  c.dropped.Load(),
		Invalid:  c.invalid.Load(),
	}
}

// readLoop decodes frames until the connection fails or Close is called.
func (c *feedClient) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.logger.Warn("feed idle, connection stale", "timeout", c.cfg.IdleTimeout)
				err = ErrStaleConnection
			}
			select {
			case c.errors <- err:
			default:
			}
			return
		}
		conn.SetReadDeadline(receivedAt.Add(c.cfg.IdleTimeout))
		c.received.Add(1)

		frame, ok := c.decode(data)
		if !ok {
			c.invalid.Add(1)
			c.logger.Debug("invalid frame", "data", string(data))
			continue
		}
		frame.ReceivedAt = receivedAt

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		default:
			c.dropped.Add(1)
			c.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// decode classifies a frame by its type field.
func (c *feedClient) decode(data []byte) (Frame, bool) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Type == "" {
		return Frame{}, false
	}

	frame := Frame{Raw: data}
	switch probe.Type {
	case "price", "aggregate":
		var msg DataMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return Frame{}, false
		}
		frame.Data = &msg
	default:
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return Frame{}, false
		}
		if resp.Type == TypeWelcome {
			var w WelcomeMsg
			if json.Unmarshal(resp.Msg, &w) == nil {
				c.mu.Lock()
				c.clientID = w.ClientID
				c.mu.Unlock()
			}
		}
		frame.Response = &resp
	}
	return frame, true
}

// HandshakeError is returned by Connect when the hub refuses the upgrade,
// e.g. 404 for an unknown ticker in the initial filter.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return "feed handshake failed (" + http.StatusText(e.StatusCode) + "): " + e.Err.Error()
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// dialURL appends the ticker filter to raw.
func dialURL(raw string, tickers []string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(tickers) > 0 {
		q := u.Query()
		q.Set("tickers", strings.Join(tickers, ","))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
