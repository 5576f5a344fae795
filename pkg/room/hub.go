package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gistsync/gistsync/pkg/gist"
	"github.com/gistsync/gistsync/pkg/observe"
)

// Hub maintains the set of live rooms, keyed by gist id.
type Hub struct {
	store   gist.Store
	cfg     Config
	logger  *slog.Logger
	metrics *observe.Metrics

	mu     sync.Mutex
	rooms  map[string]*Room
	closed bool
}

// NewHub creates a hub backed by the given canonical store.
func NewHub(store gist.Store, cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		store:   store,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: observe.Default(),
		rooms:   make(map[string]*Room),
	}
}

// Join attaches a connection to the room for gistID, creating the
// room on first join.
func (h *Hub) Join(gistID string, conn Conn) *Room {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	r, ok := h.rooms[gistID]
	if !ok {
		r = newRoom(gistID, h.store, h.cfg, h.logger, h.metrics)
		h.rooms[gistID] = r
		h.metrics.ActiveRooms.Inc()
		h.logger.Info("room created", "gist_id", gistID)
	}
	h.mu.Unlock()

	r.Join(conn)
	return r
}

// Leave detaches a connection from its room. An emptied room makes a
// final persistence pass and is evicted, the hibernation analogue.
func (h *Hub) Leave(r *Room, conn Conn) {
	if r == nil {
		return
	}
	if !r.Leave(conn) {
		return
	}

	h.mu.Lock()
	if h.rooms[r.GistID()] == r {
		delete(h.rooms, r.GistID())
		h.metrics.ActiveRooms.Dec()
	}
	h.mu.Unlock()

	// Best-effort final save of whatever the document holds.
	if md := r.doc.Markdown(); md != "" {
		ctx, span := observe.StartSpan(context.Background(), "room.final_save", observe.GistID(r.GistID()))
		err := h.store.Save(ctx, r.GistID(), md)
		observe.EndSpan(span, err)
		if err != nil {
			h.logger.Warn("final save failed", "gist_id", r.GistID(), "error", err)
		}
	}

	r.close()
	h.logger.Info("room evicted", "gist_id", r.GistID())
}

// Stats returns the number of live rooms and connected sessions.
func (h *Hub) Stats() (rooms, conns int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms = len(h.rooms)
	for _, r := range h.rooms {
		r.mu.Lock()
		conns += len(r.conns)
		r.mu.Unlock()
	}
	return rooms, conns
}

// Close shuts down every room.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = make(map[string]*Room)
	h.mu.Unlock()

	for _, r := range rooms {
		r.close()
	}
}
