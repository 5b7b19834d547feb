package observer

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"foodcourt.dev/internal/reportproto"
	"foodcourt.dev/internal/sim/engine"
)

func TestObserver_HandshakeAndStream(t *testing.T) {
	bc := NewBroadcaster(reportproto.NewHeader("soda-trench", "test", 45, 3))
	srv := NewServer(bc, nil)
	ts := httptest.NewServer(srv.WSHandler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := reportproto.SubscribeMsg{Type: reportproto.TypeSubscribe, ProtocolVersion: reportproto.Version}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	var hdr reportproto.Header
	if err := json.Unmarshal(msg, &hdr); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if hdr.Type != reportproto.TypeHeader || hdr.LevelID != "soda-trench" {
		t.Fatalf("header = %+v", hdr)
	}

	// Publish a tick after the subscription is live.
	deadline := time.Now().Add(2 * time.Second)
	for {
		bc.mu.Lock()
		n := len(bc.subs)
		bc.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	bc.SetOrder(2)
	if err := bc.ReportTick(&engine.TickReport{Tick: 9, Digest: strings.Repeat("ab", 32)}); err != nil {
		t.Fatalf("report: %v", err)
	}

	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read tick: %v", err)
	}
	var tick reportproto.TickMsg
	if err := json.Unmarshal(msg, &tick); err != nil {
		t.Fatalf("decode tick: %v", err)
	}
	if tick.Type != reportproto.TypeTick || tick.OrderIndex != 2 || tick.Report.Tick != 9 {
		t.Fatalf("tick = %+v", tick)
	}
}

func TestObserver_RejectsBadHandshake(t *testing.T) {
	bc := NewBroadcaster(reportproto.NewHeader("soda-trench", "", 0, 1))
	srv := NewServer(bc, nil)
	ts := httptest.NewServer(srv.WSHandler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "HELLO"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection survived a bad handshake")
	}
}
