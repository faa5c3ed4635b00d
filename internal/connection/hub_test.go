package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/router"
)

type tickerSet map[string]bool

func (s tickerSet) Has(t string) bool { return s[t] }

func startHub(t *testing.T, cfg HubConfig) (*Hub, *router.Router, *httptest.Server) {
	t.Helper()
	rtr := router.New(router.DefaultConfig(), nil)
	hub := NewHub(cfg, rtr, tickerSet{"AAPL": true, "NOVO": true}, nil)

	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	server := httptest.NewServer(hub)

	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Stop(ctx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		rtr.Close()
	})
	return hub, rtr, server
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResponse(t *testing.T, conn *websocket.Conn) Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp Response
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return resp
}

func readData(t *testing.T, conn *websocket.Conn) DataMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg DataMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

// waitClients polls until the hub has n clients.
func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().Clients != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.Stats().Clients, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_WelcomeAndBroadcast(t *testing.T) {
	hub, rtr, server := startHub(t, DefaultHubConfig())
	conn := dial(t, wsURL(server))

	welcome := readResponse(t, conn)
	if welcome.Type != TypeWelcome {
		t.Fatalf("first message type = %q, want %q", welcome.Type, TypeWelcome)
	}
	var w WelcomeMsg
	if err := json.Unmarshal(welcome.Msg, &w); err != nil || w.ClientID == "" {
		t.Fatalf("bad welcome %s: %v", welcome.Msg, err)
	}
	waitClients(t, hub, 1)

	rtr.ObserveSample("AAPL", model.PriceSample{Timestamp: 60, Price: 150.1})
	rtr.Append("AAPL", model.AggregateRecord{Granularity: model.Minute, Average: 150, Max: 151, Min: 149, Seq: 1})

	price := readData(t, conn)
	if price.Type != "price" || price.Ticker != "AAPL" || price.Tick != 60 || price.Price != 150.1 {
		t.Errorf("price message = %+v", price)
	}

	agg := readData(t, conn)
	if agg.Type != "aggregate" || agg.Granularity != "MINUTE" || agg.Seq != 1 || agg.Tick != 60 {
		t.Errorf("aggregate message = %+v", agg)
	}
}

func TestHub_TickerFilterFromQuery(t *testing.T) {
	hub, rtr, server := startHub(t, DefaultHubConfig())
	conn := dial(t, wsURL(server)+"?tickers=NOVO")
	readResponse(t, conn)
	waitClients(t, hub, 1)

	rtr.ObserveSample("AAPL", model.PriceSample{Timestamp: 1, Price: 150})
	rtr.ObserveSample("NOVO", model.PriceSample{Timestamp: 1, Price: 750})

	msg := readData(t, conn)
	if msg.Ticker != "NOVO" {
		t.Errorf("ticker = %q, want NOVO (AAPL filtered)", msg.Ticker)
	}
}

func TestHub_UnknownTickerInQuery(t *testing.T) {
	_, _, server := startHub(t, DefaultHubConfig())

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server)+"?tickers=MSFT", nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %v, want 404", resp)
	}
}

func TestHub_SubscribeCommands(t *testing.T) {
	hub, rtr, server := startHub(t, DefaultHubConfig())
	conn := dial(t, wsURL(server))
	readResponse(t, conn)
	waitClients(t, hub, 1)

	if err := conn.WriteJSON(Command{ID: 1, Cmd: CmdSubscribe, Params: CommandParams{Tickers: []string{"NOVO", "AAPL"}}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	resp := readResponse(t, conn)
	var sub SubscribedMsg
	json.Unmarshal(resp.Msg, &sub)
	if resp.ID != 1 || resp.Type != TypeSubscribed || len(sub.Tickers) != 2 || sub.Tickers[0] != "AAPL" {
		t.Fatalf("subscribe response = %+v (%s)", resp, resp.Msg)
	}

	conn.WriteJSON(Command{ID: 2, Cmd: CmdUnsubscribe, Params: CommandParams{Tickers: []string{"AAPL"}}})
	resp = readResponse(t, conn)
	json.Unmarshal(resp.Msg, &sub)
	if resp.Type != TypeUnsubscribed || len(sub.Tickers) != 1 || sub.Tickers[0] != "NOVO" {
		t.Fatalf("unsubscribe response = %+v (%s)", resp, resp.Msg)
	}

	conn.WriteJSON(Command{ID: 3, Cmd: CmdSubscribe, Params: CommandParams{Tickers: []string{"MSFT"}}})
	resp = readResponse(t, conn)
	if resp.ID != 3 || resp.Type != TypeError {
		t.Fatalf("unknown ticker response = %+v", resp)
	}

	conn.WriteJSON(Command{ID: 4, Cmd: "shout"})
	resp = readResponse(t, conn)
	var e ErrorMsg
	json.Unmarshal(resp.Msg, &e)
	if resp.Type != TypeError || e.Code != "bad_request" {
		t.Fatalf("unknown command response = %+v", resp)
	}

	rtr.ObserveSample("AAPL", model.PriceSample{Timestamp: 2, Price: 150})
	rtr.ObserveSample("NOVO", model.PriceSample{Timestamp: 2, Price: 751})
	if msg := readData(t, conn); msg.Ticker != "NOVO" {
		t.Errorf("ticker = %q, want NOVO", msg.Ticker)
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.SendBuffer = 1
	hub, rtr, server := startHub(t, cfg)

	// Never read, so socket buffers fill and the send queue backs up.
	dial(t, wsURL(server))
	waitClients(t, hub, 1)

	for i := 0; i < 500000; i++ {
		rtr.ObserveSample("AAPL", model.PriceSample{Timestamp: int64(i), Price: 150})
		if hub.Stats().Dropped > 0 {
			break
		}
	}

	waitClients(t, hub, 0)
	if hub.Stats().Dropped == 0 {
		t.Error("expected a dropped client")
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, _, server := startHub(t, DefaultHubConfig())
	conn := dial(t, wsURL(server))
	readResponse(t, conn)
	waitClients(t, hub, 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitClients(t, hub, 0)
}

func TestHub_StopRejectsNewClients(t *testing.T) {
	rtr := router.New(router.DefaultConfig(), nil)
	defer rtr.Close()
	hub := NewHub(DefaultHubConfig(), rtr, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before Start: status = %d, want 503", rec.Code)
	}

	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := hub.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := hub.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	rec = httptest.NewRecorder()
	hub.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("after Stop: status = %d, want 503", rec.Code)
	}
}
