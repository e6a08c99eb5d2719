package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"go-saas-auth/internal/event"
)

type Hub struct {
	// Registered clients, grouped by the user they authenticated as.
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	bus    event.Bus
	done   chan struct{}
	active atomic.Int64
}

func NewHub(bus event.Bus) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]map[*Client]bool),
		bus:        bus,
		done:       make(chan struct{}),
	}
}

// Run routes bus events to the connections of the user each event is about.
// Events without a user are not delivered.
func (h *Hub) Run(ctx context.Context) {
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for client := range set {
					close(client.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			h.active.Store(0)
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[client.userID] = set
			}
			set[client] = true
			h.active.Add(1)
		case client := <-h.unregister:
			h.remove(client)
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.UserID == "" {
				continue
			}
			set := h.clients[e.UserID]
			if len(set) == 0 {
				continue
			}

			message, err := json.Marshal(e)
			if err != nil {
				slog.Error("failed to marshal event", "error", err)
				continue
			}
			for client := range set {
				select {
				case client.send <- message:
				default:
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.send)
	h.active.Add(-1)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
}

// Active is the number of registered connections.
func (h *Hub) Active() int64 {
	return h.active.Load()
}

func (h *Hub) attach(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
