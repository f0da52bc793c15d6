package room

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"example.com/undercover/internal/game"
)

// Directory is the fleet-level registry of live rooms. It owns room
// creation and removal and intermediates every cross-room effect: rooms
// emit eviction requests here instead of holding references to each other.
type Directory struct {
	cfg   Config
	log   *slog.Logger
	store Storage
	words game.WordSource
	reg   *ConnectionRegistry

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewDirectory(cfg Config, store Storage, words game.WordSource, reg *ConnectionRegistry, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		cfg:   cfg,
		log:   log,
		store: store,
		words: words,
		reg:   reg,
		rooms: make(map[string]*Room),
	}
}

// Create starts a new room with a fresh id and launches its lifecycle.
func (d *Directory) Create(ctx context.Context) *Room {
	return d.CreateWithID(ctx, uuid.NewString())
}

// CreateWithID starts a room under the given id, recovering persisted
// state if the id has any. An already-live id returns the existing room.
func (d *Directory) CreateWithID(ctx context.Context, id string) *Room {
	d.mu.Lock()
	if existing, ok := d.rooms[id]; ok {
		d.mu.Unlock()
		return existing
	}
	r := New(id, d.cfg, d.store, d.words, d.reg, d.log)
	r.SetDeleteCallback(d.remove)
	r.SetEvictCallback(d.requestEviction)
	d.rooms[id] = r
	d.mu.Unlock()

	if err := r.Restore(ctx); err != nil {
		d.log.Error("room recovery failed", "room", id, "error", err)
	}
	go r.Run(context.WithoutCancel(ctx))
	d.log.Info("room created", "room", id)
	return r
}

func (d *Directory) Get(id string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[id]
	return r, ok
}

func (d *Directory) remove(id string) {
	d.mu.Lock()
	delete(d.rooms, id)
	d.mu.Unlock()
	d.log.Info("room removed", "room", id)
}

// requestEviction pulls a player out of the room they were previously
// bound to. It runs asynchronously so the requesting room's critical
// section never nests inside another room's.
func (d *Directory) requestEviction(playerID game.PlayerID, roomID string) {
	d.mu.Lock()
	r, ok := d.rooms[roomID]
	d.mu.Unlock()
	if !ok {
		return
	}
	go r.EvictPlayer(context.Background(), playerID)
}

// RoomInfo is one row of the public room list.
type RoomInfo struct {
	ID           string     `json:"id"`
	Phase        game.Phase `json:"phase"`
	Connected    int        `json:"connected"`
	TotalPlayers int        `json:"total_players"`
	MaxPlayers   int        `json:"max_players"`
}

// List returns the live rooms ordered by id.
func (d *Directory) List() []RoomInfo {
	d.mu.Lock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		connected, total, phase, deleted := r.Status()
		if deleted {
			continue
		}
		out = append(out, RoomInfo{
			ID:           r.ID,
			Phase:        phase,
			Connected:    connected,
			TotalPlayers: total,
			MaxPlayers:   d.cfg.MaxPlayers,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

// Shutdown deletes every live room, broadcasting closing notices and
// flushing final saves.
func (d *Directory) Shutdown(ctx context.Context) {
	d.mu.Lock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()

	for _, r := range rooms {
		r.Delete(ctx)
	}
}
