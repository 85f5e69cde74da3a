package websocket

import (
	"context"

	"mediafetch/types"

	"go.uber.org/zap"
)

// AllJobs is the subscription key of clients following every job
const AllJobs = "all"

// Hub interface defines the methods for managing WebSocket connections
type Hub interface {
	Run(ctx context.Context)
	// Broadcast never blocks; messages are dropped when the hub is saturated.
	Broadcast(msg types.ProgressMessage)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
}

// hub maintains the set of active clients and fans messages out to them
type hub struct {
	// clients keyed by job id, or AllJobs
	clients map[string]map[*Client]struct{}

	broadcast  chan types.ProgressMessage
	register   chan *Client
	unregister chan *Client
	// closed when Run returns
	done chan struct{}

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) Hub {
	return &hub{
		clients:    make(map[string]map[*Client]struct{}),
		broadcast:  make(chan types.ProgressMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With(zap.String("component", "websocket_hub")),
	}
}

// Run owns the client map; every mutation happens on this goroutine
func (h *hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
			}
			h.clients = make(map[string]map[*Client]struct{})
			return

		case client := <-h.register:
			if h.clients[client.jobID] == nil {
				h.clients[client.jobID] = make(map[*Client]struct{})
			}
			h.clients[client.jobID][client] = struct{}{}
			h.logger.Debug("WebSocket client connected", zap.String("job_id", client.jobID))

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug("WebSocket client disconnected", zap.String("job_id", client.jobID))

		case message := <-h.broadcast:
			h.deliver(message.JobID, message)
			h.deliver(AllJobs, message)
		}
	}
}

// deliver sends to the clients under key, dropping the ones that cannot keep up
func (h *hub) deliver(key string, message types.ProgressMessage) {
	for client := range h.clients[key] {
		select {
		case client.send <- message:
		default:
			h.remove(client)
		}
	}
}

func (h *hub) remove(client *Client) {
	clients, ok := h.clients[client.jobID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.jobID)
	}
}

// Broadcast queues a progress message for the job's subscribers
func (h *hub) Broadcast(msg types.ProgressMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("WebSocket broadcast channel full, dropping message", zap.String("job_id", msg.JobID))
	}
}

// RegisterClient registers a new client with the hub
func (h *hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// UnregisterClient unregisters a client from the hub
func (h *hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
