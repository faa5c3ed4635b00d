package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/router"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no traffic)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrHubClosed       = errors.New("hub closed")
)

// Frame is one message received by a Client. Exactly one of Data and
// Response is set.
type Frame struct {
	Data       *DataMessage // price or aggregate event
	Response   *Response    // welcome or command answer
	Raw        []byte
	ReceivedAt time.Time
}

// Command names accepted from clients.
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// Response types sent to clients.
const (
	TypeWelcome      = "welcome"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"
)

// Command is a client request.
type Command struct {
	ID     int64         `json:"id"`
	Cmd    string        `json:"cmd"`
	Params CommandParams `json:"params"`
}

// CommandParams are the parameters of subscribe and unsubscribe.
// An empty ticker list on subscribe means every ticker.
type CommandParams struct {
	Tickers []string `json:"tickers,omitempty"`
}

// Response answers a Command, or greets a new client (ID 0).
type Response struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg,omitempty"`
}

// WelcomeMsg is sent once after the upgrade.
type WelcomeMsg struct {
	ClientID string `json:"client_id"`
	Tick     int64  `json:"tick"`
}

// SubscribedMsg lists the tickers a client is filtered to. Empty means all.
type SubscribedMsg struct {
	Tickers []string `json:"tickers"`
}

// ErrorMsg is the content of an error response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DataMessage is one live event on the wire.
type DataMessage struct {
	Type   string `json:"type"` // "price" or "aggregate"
	Ticker string `json:"ticker"`
	Tick   int64  `json:"tick"`

	Price float64 `json:"price,omitempty"`

	Granularity string  `json:"granularity,omitempty"`
	Average     float64 `json:"average,omitempty"`
	Max         float64 `json:"max,omitempty"`
	Min         float64 `json:"min,omitempty"`
	Seq         int64   `json:"seq,omitempty"`
}

// NewDataMessage converts a router event to its wire form.
func NewDataMessage(ev router.Event) DataMessage {
	msg := DataMessage{
		Type:   string(ev.Type),
		Ticker: ev.Ticker,
		Tick:   ev.Tick,
	}
	switch ev.Type {
	case router.EventPrice:
		msg.Price = ev.Price
	case router.EventAggregate:
		msg.Granularity = ev.Record.Granularity.String()
		msg.Average = ev.Record.Average
		msg.Max = ev.Record.Max
		msg.Min = ev.Record.Min
		msg.Seq = ev.Record.Seq
	}
	return msg
}

// Record returns the aggregate carried by an aggregate message.
func (m DataMessage) Record() (model.AggregateRecord, error) {
	g, err := model.ParseGranularity(m.Granularity)
	if err != nil {
		return model.AggregateRecord{}, err
	}
	return model.AggregateRecord{
		Granularity: g,
		Average:     m.Average,
		Max:         m.Max,
		Min:         m.Min,
		Seq:         m.Seq,
	}, nil
}

// ClientConfig configures a dialing Client.
type ClientConfig struct {
	URL          string        // ws://host:port/ws/stream
	Tickers      []string      // Initial filter sent as ?tickers=; empty = all
	IdleTimeout  time.Duration // Max time without any frame or ping from the hub
	WriteTimeout time.Duration // Write deadline for commands
	BufferSize   int           // Frames channel capacity
}

// DefaultClientConfig returns defaults matched to DefaultHubConfig: the hub
// pings every 30s, so two missed pings mark the connection stale.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		IdleTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}

// ClientStats counts frames seen by a Client.
type ClientStats struct {
	Received int64
	Dropped  int64 // Frames discarded because Frames() was not drained
	Invalid  int64 // Frames that were not valid JSON
}

// HubConfig configures the server-side Hub.
type HubConfig struct {
	PingInterval time.Duration // How often each client is pinged
	PongTimeout  time.Duration // Max time without pong before dropping a client
	WriteTimeout time.Duration // Write deadline per frame
	SendBuffer   int           // Per-client outbound queue; a full queue disconnects the client
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		SendBuffer:   256,
	}
}
