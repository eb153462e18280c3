package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

var ErrHubStopped = errors.New("hub stopped")

const publishBuffer = 256

// implements port.EventPublisher
type Hub struct {
	mu         sync.RWMutex
	clients    map[domain.UserID]map[Client]bool
	publish    chan domain.Event
	register   chan Client
	unregister chan Client
	quit       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[domain.UserID]map[Client]bool),
		publish:    make(chan domain.Event, publishBuffer),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Publish(ctx context.Context, ev domain.Event) error {
	select {
	case <-h.quit:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case h.publish <- ev:
	default:
		log.Warn().Str("event", string(ev.Type)).Str("user_id", ev.UserID.String()).Msg("Publish channel full, dropping event")
	}
	return nil
}

// Clients is the number of open sockets of a user.
func (h *Hub) Clients(userID domain.UserID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for userID, set := range h.clients {
				for client := range set {
					client.Close()
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.UserID()]
			if !ok {
				set = make(map[Client]bool)
				h.clients[client.UserID()] = set
			}
			set[client] = true
			h.mu.Unlock()
			log.Info().Str("client_id", client.ID()).Str("user_id", client.UserID().String()).Msg("Client registered")

		case client := <-h.unregister:
			if h.remove(client) {
				log.Info().Str("client_id", client.ID()).Str("user_id", client.UserID().String()).Msg("Client unregistered")
			}

		case ev := <-h.publish:
			h.mu.RLock()
			targets := make([]Client, 0, len(h.clients[ev.UserID]))
			for client := range h.clients[ev.UserID] {
				targets = append(targets, client)
			}
			h.mu.RUnlock()

			for _, client := range targets {
				if err := client.SendEvent(ev); err != nil {
					log.Error().Err(err).Str("client_id", client.ID()).Msg("Error sending event")
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID()]
	if !ok || !set[client] {
		return false
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.UserID())
	}
	client.Close()
	return true
}

func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		c.Close()
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}
