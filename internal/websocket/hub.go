package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/rs/zerolog"
)

// Recorder receives hub observations
type Recorder interface {
	RecordWebSocketConnect()
	RecordWebSocketDisconnect()
	RecordWebSocketMessage()
	RecordWebSocketError()
	RecordNotification(notificationType string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWebSocketConnect()    {}
func (nopRecorder) RecordWebSocketDisconnect() {}
func (nopRecorder) RecordWebSocketMessage()    {}
func (nopRecorder) RecordWebSocketError()      {}
func (nopRecorder) RecordNotification(string)  {}

// outbound is a message waiting to be fanned out
type outbound struct {
	data     []byte
	audience types.Audience
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Messages to fan out
	broadcast chan outbound

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex to protect clients map
	mu sync.RWMutex

	recorder Recorder
	logger   zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		recorder:   nopRecorder{},
		logger:     logger.With().Str("component", "websocket_hub").Logger(),
	}
}

// SetRecorder sets the metrics recorder. Call before Run.
func (h *Hub) SetRecorder(r Recorder) {
	if r != nil {
		h.recorder = r
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.recorder.RecordWebSocketConnect()
			h.logger.Info().
				Str("client_id", client.id).
				Str("role", client.Role()).
				Int("total_clients", total).
				Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.removeLocked(client)
				h.logger.Info().
					Str("client_id", client.id).
					Int("total_clients", len(h.clients)).
					Msg("client disconnected")
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Notify publishes a notification to every client in its audience. It
// never blocks the caller; notifications are dropped when the queue is full.
func (h *Hub) Notify(n types.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal notification")
		return
	}

	select {
	case h.broadcast <- outbound{data: data, audience: n.Audience}:
		h.recorder.RecordNotification(string(n.Type))
	default:
		h.logger.Warn().Str("type", string(n.Type)).Msg("broadcast queue full, notification dropped")
	}
}

// join registers client and reports false once the hub has stopped
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters client unless the hub has already stopped
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// fanOut sends a message to each client allowed to see it
func (h *Hub) fanOut(msg outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.Accepts(msg.audience) {
			continue
		}

		select {
		case client.send <- msg.data:
			h.recorder.RecordWebSocketMessage()
		default:
			// Client's send buffer is full, close and remove it
			h.removeLocked(client)
			h.recorder.RecordWebSocketError()
			h.logger.Warn().
				Str("client_id", client.id).
				Msg("client send buffer full, closing connection")
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.recorder.RecordWebSocketDisconnect()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.removeLocked(client)
	}
}
