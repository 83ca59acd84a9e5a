// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/models"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// sendBuffer is how many frames an observer may lag before eviction
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Observers are served from any front end, same as the CORS policy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Observer is one connected websocket client
type Observer struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.Mutex
	channel string
	closed  bool
}

func (o *Observer) Channel() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.channel
}

func (o *Observer) setChannel(ch string) {
	o.mu.Lock()
	o.channel = ch
	o.mu.Unlock()
}

// enqueue hands a frame to the observer without blocking.
// It returns false if the observer is closed or its buffer is full.
func (o *Observer) enqueue(frame []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel once; the write pump then closes the socket
func (o *Observer) shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.send)
	}
}

// Hub tracks connected observers and fans frames out to them.
type Hub struct {
	welcome models.WelcomeData
	metrics *metrics.Broadcaster
	logger  *slog.Logger

	mu        sync.RWMutex
	observers map[*Observer]struct{}
}

func NewHub(welcome models.WelcomeData, m *metrics.Broadcaster, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewBroadcaster(prometheus.NewRegistry())
	}
	if welcome.Channel == "" {
		welcome.Channel = models.ChannelTally
	}
	return &Hub{
		welcome:   welcome,
		metrics:   m,
		logger:    logger.With("component", "hub"),
		observers: make(map[*Observer]struct{}),
	}
}

// Len reports the number of connected observers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

func (h *Hub) register(o *Observer) {
	h.mu.Lock()
	h.observers[o] = struct{}{}
	n := len(h.observers)
	h.mu.Unlock()

	h.metrics.Observers.Set(float64(n))
}

func (h *Hub) unregister(o *Observer) {
	h.mu.Lock()
	_, ok := h.observers[o]
	delete(h.observers, o)
	n := len(h.observers)
	h.mu.Unlock()

	if ok {
		o.shutdown()
		h.metrics.Observers.Set(float64(n))
	}
}

// Broadcast delivers frame to every observer on channel and returns how many
// accepted it. Observers whose buffers are full are evicted instead of
// stalling delivery to the others.
func (h *Hub) Broadcast(channel string, frame []byte) int {
	h.mu.RLock()
	targets := make([]*Observer, 0, len(h.observers))
	for o := range h.observers {
		if o.Channel() == channel {
			targets = append(targets, o)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, o := range targets {
		if o.enqueue(frame) {
			delivered++
			continue
		}
		h.metrics.Evicted.Inc()
		h.logger.Warn("evicting slow observer", "remote", o.conn.RemoteAddr().String())
		h.unregister(o)
	}
	return delivered
}

// Close disconnects every observer
func (h *Hub) Close() {
	h.mu.Lock()
	observers := h.observers
	h.observers = make(map[*Observer]struct{})
	h.mu.Unlock()

	for o := range observers {
		o.shutdown()
	}
	h.metrics.Observers.Set(0)
}

// ServeWS upgrades the request, greets the observer and subscribes it to
// the global tally channel. The first scores frame arrives on the next tick.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	o := &Observer{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		channel: h.welcome.Channel,
	}

	welcome, err := json.Marshal(models.Event{Event: models.EventWelcome, Data: h.welcome})
	if err != nil {
		h.logger.Error("failed to encode welcome", "error", err)
		conn.Close()
		return
	}
	o.send <- welcome

	h.register(o)
	h.logger.Info("observer connected", "remote", conn.RemoteAddr().String(), "observers", h.Len())

	go o.writePump()
	go o.readPump()
}

// readPump consumes client frames until the connection fails. The only
// client event is subscribe, which moves the observer to a named channel.
func (o *Observer) readPump() {
	defer func() {
		o.hub.unregister(o)
		o.hub.logger.Info("observer disconnected", "remote", o.conn.RemoteAddr().String())
	}()

	o.conn.SetReadLimit(maxMessageSize)
	o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := o.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Event string              `json:"event"`
			Data  models.SubscribeData `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			o.hub.logger.Debug("ignoring malformed observer frame", "error", err)
			continue
		}
		if msg.Event == models.EventSubscribe && msg.Data.Channel != "" {
			o.setChannel(msg.Data.Channel)
		}
	}
}

func (o *Observer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-o.send:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				o.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := o.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
