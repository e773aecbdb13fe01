// Package events streams committed board changes to WebSocket subscribers.
package events

import (
	"net/http"
	"sync"
	"time"

	"bulletin/internal/board"
	"bulletin/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultBuffer = 64
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type subscriber struct {
	send chan board.Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans board events out to connected subscribers. A subscriber whose
// buffer is full is disconnected so Publish never blocks the writer.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	buffer int
	closed bool
}

// NewHub creates a hub. buffer is the per-subscriber queue length; zero uses 64.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Publish implements board.EventSink.
func (h *Hub) Publish(ev board.Event) {
	h.mu.RLock()
	var slow []*subscriber
	for sub := range h.subs {
		select {
		case sub.send <- ev:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		if h.remove(sub) {
			metrics.StreamDroppedTotal.Inc()
			log.Warn().Str("kind", string(ev.Kind)).Uint64("step", ev.Step).Msg("events: dropped slow subscriber")
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.close()
	}
	metrics.StreamSubscribers.Set(0)
}

func (h *Hub) add() (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscriber{send: make(chan board.Event, h.buffer)}
	h.subs[sub] = struct{}{}
	metrics.StreamSubscribers.Set(float64(len(h.subs)))
	return sub, true
}

func (h *Hub) remove(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return false
	}
	delete(h.subs, sub)
	sub.close()
	metrics.StreamSubscribers.Set(float64(len(h.subs)))
	return true
}

// ServeHTTP upgrades the request and streams events as JSON text frames
// until the client goes away or falls behind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("events: websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub, ok := h.add()
	if !ok {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		return
	}
	defer h.remove(sub)

	log.Debug().Str("remote_addr", r.RemoteAddr).Msg("events: subscriber connected")

	// Subscribers only listen; reading drives pong handling and notices the
	// client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("events: write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			log.Debug().Str("remote_addr", r.RemoteAddr).Msg("events: subscriber disconnected")
			return
		}
	}
}
