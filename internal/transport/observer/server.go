// Package observer streams live tick reports to loopback websocket
// clients. Viewers are read-only: they subscribe and watch, they never
// steer the simulation.
package observer

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"foodcourt.dev/internal/reportproto"
	"foodcourt.dev/internal/sim/engine"
)

// Broadcaster fans marshaled report envelopes out to subscribers. It
// implements the engine's per-tick hook; a slow viewer drops frames rather
// than stalling the run.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan []byte
	nextID uint64

	header     []byte
	orderIndex atomic.Int64
}

func NewBroadcaster(header reportproto.Header) *Broadcaster {
	b := &Broadcaster{subs: make(map[uint64]chan []byte)}
	b.header, _ = json.Marshal(header)
	return b
}

// SetOrder tags subsequent ticks with the order being simulated.
func (b *Broadcaster) SetOrder(i int) { b.orderIndex.Store(int64(i)) }

// ReportTick satisfies engine.Reporter.
func (b *Broadcaster) ReportTick(r *engine.TickReport) error {
	msg, err := json.Marshal(reportproto.NewTick(int(b.orderIndex.Load()), r))
	if err != nil {
		return err
	}
	b.send(msg)
	return nil
}

// Result pushes the final metrics to every viewer.
func (b *Broadcaster) Result(m engine.RunMetrics) {
	msg, err := json.Marshal(reportproto.NewResult(m))
	if err != nil {
		return
	}
	b.send(msg)
}

func (b *Broadcaster) send(msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			// Viewer is behind; skip this frame for it.
		}
	}
}

func (b *Broadcaster) subscribe() (uint64, chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	ch := make(chan []byte, 256)
	b.subs[b.nextID] = ch
	return b.nextID, ch
}

func (b *Broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Server exposes the broadcaster over HTTP: a JSON bootstrap endpoint and
// the websocket stream. Loopback only; watching a run is a local affair.
type Server struct {
	bc  *Broadcaster
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(bc *Broadcaster, logger *log.Logger) *Server {
	return &Server{
		bc:  bc,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

// BootstrapHandler serves the run header so a viewer can render before the
// first tick arrives.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(s.bc.header)
	}
}

// WSHandler upgrades the connection, requires a SUBSCRIBE handshake, then
// streams the header and every subsequent envelope.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub reportproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"),
				time.Now().Add(time.Second))
			return
		}
		if sub.Type != reportproto.TypeSubscribe || sub.ProtocolVersion != reportproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"),
				time.Now().Add(time.Second))
			return
		}

		id, ch := s.bc.subscribe()
		defer s.bc.unsubscribe(id)

		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, s.bc.header); err != nil {
			return
		}

		// Reader goroutine: only to notice the peer going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case b, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					if s.log != nil {
						s.log.Printf("observer %d write: %v", id, err)
					}
					return
				}
			}
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
