package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"voxelmap.ai/internal/protocol"
)

// Source is the world side of a Hub.
type Source interface {
	// Welcome answers a HELLO.
	Welcome(hello protocol.HelloMsg, sessionID string) protocol.WelcomeMsg
	// Initial returns the messages a new subscriber needs before live
	// notifications, normally one CHUNK_DATA per loaded column.
	Initial(hello protocol.HelloMsg) []any
}

type subscriber struct {
	id  string
	out chan []byte
}

// Hub fans feed messages out to every connected subscriber. A subscriber
// that cannot keep up loses messages rather than stalling the others.
type Hub struct {
	src  Source
	opts options

	upgrader websocket.Upgrader
	joins    *rate.Limiter

	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewHub(src Source, opts ...Option) *Hub {
	o := buildOptions(opts)
	var joins *rate.Limiter
	if o.joinRate > 0 {
		joins = rate.NewLimiter(o.joinRate, o.joinBurst)
	}
	return &Hub{
		src:   src,
		opts:  o,
		joins: joins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[string]*subscriber{},
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast sends v to every subscriber.
func (h *Hub) Broadcast(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		select {
		case s.out <- b:
		default:
			h.opts.metrics.ObserveBroadcastDrop()
		}
	}
	return nil
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s.id] = s
	n := len(h.subs)
	h.mu.Unlock()
	h.opts.metrics.SetSubscribers(n)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()
	h.opts.metrics.SetSubscribers(n)
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub := h.handshake(conn)
		if sub == nil {
			return
		}
		defer h.remove(sub.id)
		h.opts.log.Info("feed subscriber joined", "session", sub.id, "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Subscribers have nothing to say after HELLO; reading keeps
		// control frames flowing and notices the close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		h.opts.log.Info("feed subscriber left", "session", sub.id)
	}
}

func (h *Hub) handshake(conn *websocket.Conn) *subscriber {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	if err := protocol.Validate(msg); err != nil {
		_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrProtoBadRequest, Message: err.Error()})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	v, err := protocol.Decode(msg)
	if err != nil {
		_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrProtoVersion, Message: err.Error()})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}
	hello, ok := v.(*protocol.HelloMsg)
	if !ok {
		_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrProtoBadRequest, Message: "expected HELLO"})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}

	if reason := h.busy(); reason != "" {
		_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrBusy, Message: reason})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason), time.Now().Add(time.Second))
		return nil
	}

	sub := &subscriber{id: uuid.NewString(), out: make(chan []byte, h.opts.queue)}
	// Registered before the initial state is taken so nothing broadcast in
	// between is lost. Replaying a notification onto newer state is harmless.
	h.add(sub)
	welcome := h.src.Welcome(*hello, sub.id)
	welcome.Type = protocol.TypeWelcome
	welcome.ProtocolVersion = protocol.Version
	welcome.SessionID = sub.id
	if err := writeJSON(conn, welcome); err != nil {
		h.remove(sub.id)
		return nil
	}
	for _, m := range h.src.Initial(*hello) {
		if err := writeJSON(conn, m); err != nil {
			h.remove(sub.id)
			return nil
		}
	}
	return sub
}

func (h *Hub) busy() string {
	if h.opts.maxSubs > 0 && h.Subscribers() >= h.opts.maxSubs {
		return "subscriber limit reached"
	}
	if h.joins != nil && !h.joins.Allow() {
		return "too many joins, retry later"
	}
	return ""
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
