// Package hub is the realtime coordination layer: it owns the
// connection registry, the room membership index and the presence/typing
// trackers, fans events out to the right set of connections, and drives
// the per-connection session state machine
// (anonymous -> identified -> in-room -> closed).
package hub

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/roomplus/roomplus/pkg/journal"
	"github.com/roomplus/roomplus/pkg/model"
	"github.com/roomplus/roomplus/pkg/protocol"
	"github.com/roomplus/roomplus/pkg/registry"
	"github.com/roomplus/roomplus/pkg/rooms"
	"github.com/roomplus/roomplus/pkg/snowflake"
	"github.com/roomplus/roomplus/pkg/store"
)

type Hub struct {
	log      *slog.Logger
	registry *registry.Registry
	rooms    *rooms.Index
	typing   *rooms.Typing
	presence *rooms.Presence
	store    store.Store
	journal  journal.Journal
	mirror   *redis.Client
	history  int
	idgen    *snowflake.Generator
}

type Options struct {
	Store store.Store
	Log   *slog.Logger

	// Journal, when set, receives a copy of every outbound broadcast.
	Journal journal.Journal
	// Mirror, when set, keeps room presence reflected in Redis sets for
	// out-of-process consumers.
	Mirror *redis.Client

	// HistoryPageSize is the size of the history snapshot delivered on
	// join. Defaults to 50.
	HistoryPageSize int
}

func New(opts Options) *Hub {
	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = 50
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	idgen, err := snowflake.NewGenerator(0)
	if err != nil {
		panic(err) // NewGenerator only fails for out-of-range nodes
	}
	reg := registry.New()
	idx := rooms.NewIndex()
	return &Hub{
		log:      opts.Log,
		registry: reg,
		rooms:    idx,
		typing:   rooms.NewTyping(),
		presence: rooms.NewPresence(idx, reg),
		store:    opts.Store,
		journal:  opts.Journal,
		mirror:   opts.Mirror,
		history:  opts.HistoryPageSize,
		idgen:    idgen,
	}
}

// PresenceList exposes a room's current user list, for the REST surface.
func (h *Hub) PresenceList(roomID string) []model.PresenceEntry {
	return h.presence.List(roomID)
}

// SendTo delivers one event to a single connection. A connection that no
// longer exists is silently skipped: closing between enqueue and send is
// not an error.
func (h *Hub) SendTo(id registry.ConnID, event string, payload any) {
	conn, ok := h.registry.Conn(id)
	if !ok {
		return
	}
	raw, err := protocol.Encode(event, payload)
	if err != nil {
		h.log.Error("encode event", "event", event, "err", err)
		return
	}
	h.deliver(event, raw, []registry.Conn{conn})
}

// SendToRoom fans an event out to the room's current members, optionally
// excluding one connection (so typing indicators are not echoed to their
// sender).
func (h *Hub) SendToRoom(roomID, event string, payload any, exclude registry.ConnID) {
	raw, err := protocol.Encode(event, payload)
	if err != nil {
		h.log.Error("encode event", "event", event, "err", err)
		return
	}
	var conns []registry.Conn
	for _, id := range h.rooms.Members(roomID) {
		if id == exclude {
			continue
		}
		if conn, ok := h.registry.Conn(id); ok {
			conns = append(conns, conn)
		}
	}
	h.deliver(event, raw, conns)
}

// BroadcastAll delivers an event to every live connection. Cross-room
// events (room created/deleted, global connect/disconnect) flow through
// here.
func (h *Hub) BroadcastAll(event string, payload any) {
	raw, err := protocol.Encode(event, payload)
	if err != nil {
		h.log.Error("encode event", "event", event, "err", err)
		return
	}
	h.deliver(event, raw, h.registry.Conns())
}

// deliver is best-effort, at-most-once per attempt: no acknowledgment,
// no retry, no persistence of missed events. A connection that cannot
// take the frame is closed, which drives its normal disconnect cleanup.
func (h *Hub) deliver(event string, raw []byte, conns []registry.Conn) {
	for _, conn := range conns {
		if !conn.Send(raw) {
			h.log.Debug("dropping slow connection", "conn", conn.ID(), "event", event)
			_ = conn.Close()
		}
	}
	if h.journal != nil {
		h.journal.Record(event, raw)
	}
}

func presenceKey(roomID string) string { return "room:" + roomID + ":users" }

func (h *Hub) mirrorJoin(ctx context.Context, roomID, username string) {
	if h.mirror == nil {
		return
	}
	if err := h.mirror.SAdd(ctx, presenceKey(roomID), username).Err(); err != nil {
		h.log.Warn("presence mirror add failed", "room", roomID, "user", username, "err", err)
	}
}

func (h *Hub) mirrorLeave(ctx context.Context, roomID, username string) {
	if h.mirror == nil {
		return
	}
	if err := h.mirror.SRem(ctx, presenceKey(roomID), username).Err(); err != nil {
		h.log.Warn("presence mirror remove failed", "room", roomID, "user", username, "err", err)
	}
}

// Shutdown closes every live connection; their pumps drive the usual
// disconnect cleanup.
func (h *Hub) Shutdown() {
	for _, conn := range h.registry.Conns() {
		_ = conn.Close()
	}
}

// ConnCount reports the number of live connections.
func (h *Hub) ConnCount() int { return h.registry.Len() }
