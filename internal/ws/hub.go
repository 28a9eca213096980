package ws

import (
	"sync"
)

// Hub routes events to channels. A channel is either a room id or a
// user's personal channel. The hub only tracks transport subscriptions;
// "who is viewing what" questions go to the presence registry instead of
// iterating hub internals.
type Hub struct {
	mu        sync.RWMutex
	byChannel map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{byChannel: make(map[string]map[*Client]struct{})}
}

func (h *Hub) Join(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byChannel[channel]
	if !ok {
		set = make(map[*Client]struct{})
		h.byChannel[channel] = set
	}
	set[c] = struct{}{}
	c.channels[channel] = struct{}{}
}

func (h *Hub) Leave(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, channel)
}

func (h *Hub) leaveLocked(c *Client, channel string) {
	if set, ok := h.byChannel[channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byChannel, channel)
		}
	}
	delete(c.channels, channel)
}

// LeaveAllExcept drops every channel subscription except keep. Used by the
// join protocol to enforce the single-active-room policy while preserving
// the personal channel.
func (h *Hub) LeaveAllExcept(c *Client, keep string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel := range c.channels {
		if channel != keep {
			h.leaveLocked(c, channel)
		}
	}
}

// Unregister removes the client from every channel on disconnect.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel := range c.channels {
		h.leaveLocked(c, channel)
	}
}

// ToRoom broadcasts an event to every connection subscribed to the room's
// channel, including the sender's own other connections.
func (h *Hub) ToRoom(roomID, event string, data any) {
	h.broadcast(roomID, event, data)
}

// ToUser emits an event on the user's personal channel, reaching all of
// that user's connections regardless of which room they are viewing.
func (h *Hub) ToUser(userID, event string, data any) {
	h.broadcast(PersonalChannel(userID), event, data)
}

func (h *Hub) broadcast(channel, event string, data any) {
	b, err := marshalEvent(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byChannel[channel] {
		c.Enqueue(b)
	}
}
