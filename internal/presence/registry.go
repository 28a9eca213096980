// Package presence tracks which live connections belong to which user and
// which room each connection is actively viewing. The registry is
// process-local; a connection's entry is mutated only by that connection's
// own handlers, so the map-level lock is the only synchronization needed.
package presence

import "sync"

type Registry struct {
	mu sync.RWMutex
	// userID -> connID -> active room id ("" when none)
	byUser map[string]map[string]string
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]map[string]string)}
}

func (r *Registry) Connect(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]string)
		r.byUser[userID] = conns
	}
	conns[connID] = ""
}

func (r *Registry) Disconnect(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conns, ok := r.byUser[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// SetActiveRoom records the single room channel the connection is viewing.
// An empty roomID clears it.
func (r *Registry) SetActiveRoom(userID, connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conns, ok := r.byUser[userID]; ok {
		if _, ok := conns[connID]; ok {
			conns[connID] = roomID
		}
	}
}

// Viewing reports whether any of the user's live connections is actively
// subscribed to the room. This is the sole signal for immediate
// read-receipts; no broader heuristic is applied.
func (r *Registry) Viewing(userID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, active := range r.byUser[userID] {
		if active == roomID && roomID != "" {
			return true
		}
	}
	return false
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}
