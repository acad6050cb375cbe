package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/roomplus/roomplus/pkg/model"
)

// Scylla is the ScyllaDB-backed store. Messages cluster under their room
// partition newest-first; room-name uniqueness rides on a lightweight
// transaction against the room_names table.
//
// Unlike the Badger store, the message insert and the room updated_at
// touch are two separate writes: a failure between them leaves the room
// timestamp stale. The timestamp only orders the room list, so a stale
// value is tolerated rather than wrapped in a batch.
type Scylla struct {
	session *gocql.Session
	log     *slog.Logger
}

// OpenScylla connects to the cluster with the same tuning the rest of
// our services use: quorum consistency, short timeouts, bounded
// exponential retry.
func OpenScylla(hosts []string, keyspace string, log *slog.Logger) (*Scylla, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	log.Info("connected to ScyllaDB", "hosts", hosts, "keyspace", keyspace)
	return &Scylla{session: session, log: log}, nil
}

func (s *Scylla) Close() error {
	s.session.Close()
	return nil
}

func (s *Scylla) CreateRoom(ctx context.Context, name, description string) (model.Room, error) {
	now := time.Now().UTC()
	room := model.Room{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	nameKey := normalizeRoomName(name)
	applied, err := s.session.Query(
		`INSERT INTO room_names (name, room_id) VALUES (?, ?) IF NOT EXISTS`,
		nameKey, room.ID,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return model.Room{}, err
	}
	if !applied {
		return model.Room{}, model.ErrRoomExists
	}

	err = s.session.Query(
		`INSERT INTO rooms (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		room.ID, room.Name, room.Description, room.CreatedAt, room.UpdatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		// Release the reservation so a retry is not stuck on a name
		// with no backing room. Best effort.
		if derr := s.session.Query(
			`DELETE FROM room_names WHERE name = ?`, nameKey,
		).WithContext(ctx).Exec(); derr != nil {
			s.log.Warn("room name reservation left behind", "name", nameKey, "err", derr)
		}
		return model.Room{}, err
	}
	return room, nil
}

func (s *Scylla) FindRoomByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	err := s.session.Query(
		`SELECT id, name, description, created_at, updated_at FROM rooms WHERE id = ?`, id,
	).WithContext(ctx).Scan(&room.ID, &room.Name, &room.Description, &room.CreatedAt, &room.UpdatedAt)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Scylla) ListRooms(ctx context.Context) ([]model.Room, error) {
	iter := s.session.Query(
		`SELECT id, name, description, created_at, updated_at FROM rooms`,
	).WithContext(ctx).Iter()

	var out []model.Room
	var room model.Room
	for iter.Scan(&room.ID, &room.Name, &room.Description, &room.CreatedAt, &room.UpdatedAt) {
		out = append(out, room)
		room = model.Room{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	for i := range out {
		count, err := s.CountMessages(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].MessageCount = count
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Scylla) DeleteRoom(ctx context.Context, id string) (*model.Room, error) {
	room, err := s.FindRoomByID(ctx, id)
	if err != nil || room == nil {
		return nil, err
	}
	if err := s.session.Query(`DELETE FROM messages WHERE room_id = ?`, id).WithContext(ctx).Exec(); err != nil {
		return nil, err
	}
	if err := s.session.Query(`DELETE FROM rooms WHERE id = ?`, id).WithContext(ctx).Exec(); err != nil {
		return nil, err
	}
	if err := s.session.Query(`DELETE FROM room_names WHERE name = ?`, normalizeRoomName(room.Name)).WithContext(ctx).Exec(); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Scylla) CreateMessage(ctx context.Context, roomID, username, text, imageURL string) (model.Message, error) {
	room, err := s.FindRoomByID(ctx, roomID)
	if err != nil {
		return model.Message{}, err
	}
	if room == nil {
		return model.Message{}, model.ErrRoomNotFound
	}
	msg := model.Message{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		Username:    username,
		TextContent: text,
		ImageURL:    imageURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.session.Query(
		`INSERT INTO messages (room_id, created_at, id, username, text_content, image_url) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.RoomID, msg.CreatedAt, msg.ID, msg.Username, msg.TextContent, msg.ImageURL,
	).WithContext(ctx).Exec(); err != nil {
		return model.Message{}, err
	}

	if err := s.session.Query(
		`UPDATE rooms SET updated_at = ? WHERE id = ?`, msg.CreatedAt, roomID,
	).WithContext(ctx).Exec(); err != nil {
		s.log.Warn("room timestamp touch failed", "room", roomID, "err", err)
	}
	return msg, nil
}

// MessagesByRoom reads the newest-first clustering order, skips offset
// rows and reverses the collected page to oldest-first. CQL has no
// OFFSET, so the skip is done client-side; pages stay small enough for
// that to be fine.
func (s *Scylla) MessagesByRoom(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	iter := s.session.Query(
		`SELECT id, room_id, username, text_content, image_url, created_at FROM messages WHERE room_id = ?`,
		roomID,
	).WithContext(ctx).PageSize(limit + offset).Iter()

	var page []model.Message
	var msg model.Message
	skipped := 0
	for iter.Scan(&msg.ID, &msg.RoomID, &msg.Username, &msg.TextContent, &msg.ImageURL, &msg.CreatedAt) {
		if skipped < offset {
			skipped++
			continue
		}
		page = append(page, msg)
		msg = model.Message{}
		if len(page) == limit {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

func (s *Scylla) CountMessages(ctx context.Context, roomID string) (int, error) {
	var count int
	err := s.session.Query(
		`SELECT COUNT(*) FROM messages WHERE room_id = ?`, roomID,
	).WithContext(ctx).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
