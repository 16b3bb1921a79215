// Package ws delivers agent output to connected clients over WebSocket.
// Each project has a set of subscribed connections; every connection gets
// its own buffered send queue drained by a writer goroutine, so delivery
// order per connection matches enqueue order.
package ws

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ella-systems/ella-agent/internal/metrics"
)

const sendBuffer = 64

// Conn is the minimal connection surface the hub writes to. Satisfied by
// *websocket.Conn from gofiber/websocket.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Envelope is the wire frame pushed to clients.
type Envelope struct {
	Type      string    `json:"type"`
	ProjectID string    `json:"project_id"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Envelope types.
const (
	TypeMessage      = "message"
	TypeQuestion     = "question"
	TypeFiller       = "filler"
	TypeStageChange  = "stage_change"
	TypeScreenChange = "screen_change"
	TypeAck          = "ack"
)

// Client is one registered connection. The send channel is never closed;
// done signals the pump to drain out, which avoids racing a broadcast
// against channel close.
type Client struct {
	ID        string
	ProjectID string

	conn Conn
	send chan Envelope
	done chan struct{}
	once sync.Once
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Hub tracks which connections subscribe to which project.
type Hub struct {
	mu       sync.RWMutex
	projects map[string]map[*Client]struct{}
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(m *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		projects: make(map[string]map[*Client]struct{}),
		metrics:  m,
		logger:   logger.With().Str("component", "ws").Logger(),
	}
}

// Register subscribes a connection to a project and starts its writer
// pump. The returned Client must be passed to Unregister when the
// connection ends.
func (h *Hub) Register(clientID, projectID string, conn Conn) *Client {
	c := &Client{
		ID:        clientID,
		ProjectID: projectID,
		conn:      conn,
		send:      make(chan Envelope, sendBuffer),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	if _, ok := h.projects[projectID]; !ok {
		h.projects[projectID] = make(map[*Client]struct{})
	}
	h.projects[projectID][c] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectedClients.Inc()
	}
	h.logger.Info().Str("client", clientID).Str("project", projectID).Msg("client connected")

	go h.writePump(c)
	return c
}

func (h *Hub) writePump(c *Client) {
	defer c.conn.Close()
	for {
		select {
		case env := <-c.send:
			if err := c.conn.WriteJSON(env); err != nil {
				h.logger.Warn().Str("client", c.ID).Err(err).Msg("write failed, dropping client")
				h.Unregister(c)
				return
			}
		case <-c.done:
			// Flush whatever was queued before shutdown.
			for {
				select {
				case env := <-c.send:
					if c.conn.WriteJSON(env) != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// Unregister removes a connection. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	clients, ok := h.projects[c.ProjectID]
	if ok {
		if _, present := clients[c]; !present {
			ok = false
		}
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.projects, c.ProjectID)
		}
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	c.close()
	if h.metrics != nil {
		h.metrics.ConnectedClients.Dec()
	}
	h.logger.Info().Str("client", c.ID).Str("project", c.ProjectID).Msg("client disconnected")
}

// Broadcast enqueues the envelope to every subscriber of the project.
// Zero subscribers is not an error. A client whose queue is full is
// dropped rather than blocking the sender.
func (h *Hub) Broadcast(projectID string, env Envelope) {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	env.ProjectID = projectID

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.projects[projectID]))
	for c := range h.projects[projectID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- env:
		case <-c.done:
		default:
			h.logger.Warn().Str("client", c.ID).Msg("send queue full, dropping client")
			h.Unregister(c)
		}
	}
}

// SubscriberCount returns the number of live connections for a project.
func (h *Hub) SubscriberCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.projects[projectID])
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	var all []*Client
	for _, clients := range h.projects {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.Unregister(c)
	}
}
