// Package events fans UI events out to connected control API clients.
package events

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("client closed")
)

// Event types pushed to the UI.
const (
	TypeState        = "state"
	TypeParticipants = "participants"
	TypeSound        = "sound"
	TypeNotification = "notification"
)

type Event struct {
	Type string
	Data any
}

type Client struct {
	ID   string
	send chan Event

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int32
}

func (c *Client) TrySend(ev Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- ev:
		c.dropped.Store(0)
	default:
		c.dropped.Add(1)
		return ErrBackpressure
	}
	return nil
}

// Events is closed when the client is removed from the hub.
func (c *Client) Events() <-chan Event { return c.send }

// Dropped is the number of consecutive events lost to a full queue.
func (c *Client) Dropped() int { return int(c.dropped.Load()) }

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

type Hub struct {
	buffer int
	policy Policy

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub(buffer int, policy Policy) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	if policy == nil {
		policy = DropThenKick{Limit: 64}
	}
	return &Hub{buffer: buffer, policy: policy, clients: make(map[string]*Client)}
}

// Subscribe registers a client under id, replacing an older one.
func (h *Hub) Subscribe(id string) *Client {
	c := &Client{ID: id, send: make(chan Event, h.buffer)}
	h.mu.Lock()
	old := h.clients[id]
	h.clients[id] = c
	h.mu.Unlock()
	if old != nil {
		old.close()
	}
	log.Debug().Str("module", "app.events").Str("client", id).Msg("client subscribed")
	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		delete(h.clients, c.ID)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues ev for every client without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		err := c.TrySend(ev)
		if err == nil || errors.Is(err, ErrClosed) {
			continue
		}
		switch h.policy.OnBackPressure(c) {
		case KickClient:
			log.Warn().Str("module", "app.events").Str("client", c.ID).Msg("slow client kicked")
			h.Unsubscribe(c)
		case DropEvent, NoAction:
			log.Debug().Str("module", "app.events").Str("client", c.ID).Str("type", ev.Type).Msg("event dropped for slow client")
		}
	}
}
