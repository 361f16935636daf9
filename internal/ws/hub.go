package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// farmEvent is an internal struct for routing events to specific farms
type farmEvent struct {
	FarmID uuid.UUID
	Event  Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by farm ID
	rooms map[uuid.UUID]map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *farmEvent

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *farmEvent, 256),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[client.farmID] == nil {
		h.rooms[client.farmID] = make(map[*Client]bool)
	}
	h.rooms[client.farmID][client] = true
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[client.farmID]
	if !ok {
		return
	}
	if _, exists := clients[client]; exists {
		delete(clients, client)
		close(client.send)
		// Clean up empty rooms
		if len(clients) == 0 {
			delete(h.rooms, client.farmID)
		}
	}
}

func (h *Hub) deliver(event *farmEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.rooms[event.FarmID]

	// Marshal event to JSON once
	message, err := json.Marshal(event.Event)
	if err != nil {
		return
	}

	// Send to all clients in this farm's room
	for client := range clients {
		select {
		case client.send <- message:
		default:
			// Client's send buffer is full, close and unregister
			close(client.send)
			delete(h.rooms[event.FarmID], client)
			if len(h.rooms[event.FarmID]) == 0 {
				delete(h.rooms, event.FarmID)
			}
		}
	}
}

// closeAll disconnects every client and empties the rooms on shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for farmID, clients := range h.rooms {
		for client := range clients {
			close(client.send)
		}
		delete(h.rooms, farmID)
	}
}

// BroadcastToFarm sends an event to all clients subscribed to a specific farm
// This is the public API for handlers to broadcast events
func (h *Hub) BroadcastToFarm(farmID uuid.UUID, event Event) {
	h.broadcast <- &farmEvent{
		FarmID: farmID,
		Event:  event,
	}
}
