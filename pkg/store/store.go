// Package store is the persistence collaborator for rooms and message
// history. Two implementations exist: an embedded BadgerDB store (the
// default) and a ScyllaDB store for deployments that already run one.
package store

import (
	"context"
	"strings"

	"github.com/roomplus/roomplus/pkg/model"
)

// normalizeRoomName is the uniqueness key for room names. Rooms keep
// their display case; only the name index is compared lowered, so
// "General" and "general" are the same room name.
func normalizeRoomName(name string) string { return strings.ToLower(name) }

// Store is the request/response storage interface the realtime layer
// depends on. Message pages are returned oldest-first for display
// regardless of the backing engine's native ordering; limit/offset
// count from the newest message, so offset 0 is the most recent page.
type Store interface {
	CreateRoom(ctx context.Context, name, description string) (model.Room, error)
	ListRooms(ctx context.Context) ([]model.Room, error)
	// FindRoomByID returns (nil, nil) when the room does not exist.
	FindRoomByID(ctx context.Context, id string) (*model.Room, error)
	// DeleteRoom removes the room and all its messages, returning the
	// deleted record, or (nil, nil) when the room does not exist.
	DeleteRoom(ctx context.Context, id string) (*model.Room, error)

	CreateMessage(ctx context.Context, roomID, username, text, imageURL string) (model.Message, error)
	MessagesByRoom(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error)
	CountMessages(ctx context.Context, roomID string) (int, error)

	Close() error
}
