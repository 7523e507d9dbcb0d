package realtime

import (
	"context"
	"sync"

	"github.com/ItsMariusBC/TrainStats/pkg/log"
)

// Hub is the process-wide fan-out channel. It keeps the registry of
// connected websocket clients and broadcasts every published message to all
// of them. Delivery is best-effort, at-most-once: a client whose send buffer
// is full is dropped and must reconcile via its periodic refetch.
type Hub struct {
	logger *log.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}

	mu          sync.Mutex
	subscribers map[chan Message]bool
}

// NewHub creates a new hub. Run must be called before clients attach.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger:      logger,
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan Message, 256),
		done:        make(chan struct{}),
		subscribers: make(map[chan Message]bool),
	}
}

// Publish implements Bus. It never blocks the caller: publication is an
// enqueue onto the broadcast channel, and the hub goroutine forwards from
// there.
func (h *Hub) Publish(topic string, payload interface{}) {
	msg := Message{Topic: topic, Data: payload}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.WithField("topic", topic).Warn("Realtime broadcast buffer full, dropping event")
	}
}

// Subscribe implements Bus for in-process consumers.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, 64)

	h.mu.Lock()
	h.subscribers[ch] = true
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if h.subscribers[ch] {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Run owns the client registry until the context is cancelled. Lifecycle
// events take priority over broadcasts so the registry is consistent before
// a message fans out.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.clients[client] = true
			h.logger.WithField("clients", len(h.clients)).Debug("Realtime client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.logger.WithField("clients", len(h.clients)).Debug("Realtime client disconnected")
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver fans a message out to every client and in-process subscriber.
func (h *Hub) deliver(msg Message) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer: drop it rather than stall the hub.
			delete(h.clients, client)
			close(client.send)
			h.logger.WithFields(log.Fields{
				"topic":     msg.Topic,
				"client_id": client.id,
				"user_id":   client.userID,
			}).Warn("Dropping slow realtime client")
		}
	}

	h.mu.Lock()
	for ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
	h.mu.Unlock()

	h.logger.LogRealtime(msg.Topic, len(h.clients))
}

func (h *Hub) shutdown() {
	// Unblocks clients attaching or detaching after the registry stopped.
	close(h.done)

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}

	h.mu.Lock()
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.mu.Unlock()

	h.logger.Info("Realtime hub stopped")
}
