// Package stream feeds scene events to websocket observers as JSON frames.
package stream

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/akmonengine/plume"
	"github.com/gorilla/websocket"
)

const (
	// DefaultPingInterval keeps idle connections alive through proxies.
	DefaultPingInterval = 2 * time.Second
	writeTimeout        = 5 * time.Second
	// clientBuffer is the number of frames queued per observer before frames
	// are dropped for it.
	clientBuffer = 256
)

// Source is where the hub takes its events from, typically a *plume.Scene.
type Source interface {
	Subscribe(eventType plume.EventType, listener plume.EventListener)
}

// safeWriter serializes writes on a connection.
type safeWriter struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

func (w *safeWriter) WriteJSON(v any) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(v)
}

func (w *safeWriter) WriteControl(messageType int) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.conn.WriteControl(messageType, nil, time.Now().Add(writeTimeout))
}

type client struct {
	writer  *safeWriter
	send    chan Frame
	dropped int
}

// Hub broadcasts scene events to every connected observer. Listeners run on
// the step goroutine, so broadcasting never blocks: a slow observer loses
// frames instead of stalling the scene.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub subscribes a hub to every event type of source.
func NewHub(source Source) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: DefaultPingInterval,
		clients:      make(map[*client]struct{}),
	}

	for _, eventType := range []plume.EventType{
		plume.UPDATE_TERSE,
		plume.UPDATE_STOPPED,
		plume.OUT_OF_BOUNDS,
		plume.CHARACTER_DEFECT,
		plume.COLLISIONS,
	} {
		source.Subscribe(eventType, h.broadcast)
	}

	return h
}

// SetPingInterval sets the interval of keep-alive pings for new connections.
func (h *Hub) SetPingInterval(interval time.Duration) {
	h.pingInterval = interval
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(event plume.Event) {
	frame := NewFrame(event)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			c.dropped++
			if c.dropped == 1 {
				log.Printf("Stream: observer %s too slow, dropping frames", c.writer.conn.RemoteAddr())
			}
		}
	}
}

// ServeHTTP upgrades the request and streams frames until the observer
// disconnects or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Stream: upgrade: %v", err)
		return
	}

	c := &client{writer: &safeWriter{conn: conn}, send: make(chan Frame, clientBuffer)}
	if !h.add(c) {
		conn.Close()
		return
	}
	log.Printf("Stream: observer %s connected", conn.RemoteAddr())

	done := make(chan struct{})
	go func() {
		defer close(done)
		// observers only listen; reading detects the close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.write(c, done)

	h.remove(c)
	conn.Close()
	log.Printf("Stream: observer %s disconnected", conn.RemoteAddr())
}

func (h *Hub) write(c *client, done <-chan struct{}) {
	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case frame, ok := <-c.send:
			if !ok {
				if err := c.writer.WriteControl(websocket.CloseMessage); err != nil {
					log.Printf("Stream: close: %v", err)
				}
				return
			}
			if err := c.writer.WriteJSON(frame); err != nil {
				log.Printf("Stream: write: %v", err)
				return
			}
		case <-ping.C:
			if err := c.writer.WriteControl(websocket.PingMessage); err != nil {
				log.Printf("Stream: ping: %v", err)
				return
			}
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every observer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
