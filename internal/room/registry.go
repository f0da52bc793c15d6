package room

import (
	"sync"

	"example.com/undercover/internal/game"
)

// Binding is one live player connection: which room it sits in and the
// outbound channel feeding its socket writer.
type Binding struct {
	RoomID  string
	Channel chan []byte
}

// ConnectionRegistry tracks the single live binding per player across the
// whole process. A joining room consults it to find out whether the player
// is already connected somewhere else; eviction from that other room goes
// through the directory, never room to room.
type ConnectionRegistry struct {
	mu       sync.Mutex
	bindings map[game.PlayerID]Binding
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{bindings: make(map[game.PlayerID]Binding)}
}

// Register stores the new binding and returns the previous one, if any.
func (r *ConnectionRegistry) Register(playerID game.PlayerID, roomID string, ch chan []byte) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.bindings[playerID]
	r.bindings[playerID] = Binding{RoomID: roomID, Channel: ch}
	return prev, had
}

// Unregister drops the binding only if ch still owns it, so a stale
// disconnect cannot knock out a newer connection.
func (r *ConnectionRegistry) Unregister(playerID game.PlayerID, ch chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.bindings[playerID]; ok && cur.Channel == ch {
		delete(r.bindings, playerID)
	}
}

func (r *ConnectionRegistry) Lookup(playerID game.PlayerID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[playerID]
	return b, ok
}
