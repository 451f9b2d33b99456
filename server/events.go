package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linkpulse/linkpulse/logger"
	"github.com/linkpulse/linkpulse/pulse/job"
	"github.com/linkpulse/linkpulse/pulse/schedule"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Clients only send control frames
	maxMessageSize = 512

	// Events queued per client before it is dropped as too slow
	clientBuffer = 16
)

// Event types on the events stream
const (
	EventRun    = "run"
	EventHealth = "health"
)

// Event is one message pushed to event stream clients
type Event struct {
	Type      string                 `json:"type"`
	Job       job.Name               `json:"job,omitempty"`
	Trigger   string                 `json:"trigger,omitempty"`
	Result    *job.Result            `json:"result,omitempty"`
	Health    *schedule.HealthReport `json:"health,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHub fans finished runs and health reports out to websocket clients.
// It implements schedule.Observer.
type EventHub struct {
	mu       sync.Mutex
	clients  map[*eventClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
}

type eventClient struct {
	conn      *websocket.Conn
	send      chan Event
	closeOnce sync.Once
}

func (c *eventClient) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// NewEventHub creates a hub with no clients
func NewEventHub(log *zap.SugaredLogger) *EventHub {
	return &EventHub{
		clients: make(map[*eventClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: logger.AddPulseSymbol(logger.OrNop(log).Named("events")),
	}
}

// RunFinished pushes a finished job run to every client
func (h *EventHub) RunFinished(name job.Name, trigger string, result job.Result) {
	h.broadcast(Event{
		Type:      EventRun,
		Job:       name,
		Trigger:   trigger,
		Result:    &result,
		Timestamp: result.Timestamp,
	})
}

// HealthChecked pushes a health report to every client
func (h *EventHub) HealthChecked(report schedule.HealthReport) {
	h.broadcast(Event{
		Type:      EventHealth,
		Health:    &report,
		Timestamp: report.CheckedAt,
	})
}

// broadcast never blocks: a client whose buffer is full is dropped
func (h *EventHub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			delete(h.clients, c)
			c.close()
			h.log.Warnw("Dropping slow event client", "type", ev.Type)
		}
	}
}

func (h *EventHub) subscribe(c *eventClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *EventHub) unsubscribe(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// ServeWS upgrades the request and streams events until either side hangs up
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.log.Debugw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}

	c := &eventClient{conn: conn, send: make(chan Event, clientBuffer)}
	if !h.subscribe(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.log.Debugw("Event client connected", "remote", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and notices disconnects
func (h *EventHub) readPump(c *eventClient) {
	defer func() {
		h.unsubscribe(c)
		h.log.Debugw("Event client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				h.log.Warnw("WebSocket read error", logger.FieldError, err)
			}
			return
		}
	}
}

// writePump owns all writes to the connection
func (h *EventHub) writePump(c *eventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				h.log.Debugw("Event write failed", logger.FieldError, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
