package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/roomplus/roomplus/pkg/model"
)

// Badger is the embedded store. Message keys are
// "msg:{room_id}:{timestamp_padded}:{seq_padded}": the 19-digit
// zero-padded nanosecond timestamp makes lexicographic order
// chronological, and the process-local sequence breaks ties when two
// messages land on the same nanosecond.
type Badger struct {
	db  *badger.DB
	log *slog.Logger
	seq atomic.Uint64
}

// OpenBadger opens (or creates) the store at path.
func OpenBadger(path string, log *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &Badger{db: db, log: log}, nil
}

// OpenBadgerInMemory opens an ephemeral store, used by tests.
func OpenBadgerInMemory(log *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &Badger{db: db, log: log}, nil
}

func (b *Badger) Close() error { return b.db.Close() }

func roomKey(id string) []byte       { return []byte("room:" + id) }
func roomNameKey(name string) []byte { return []byte("roomname:" + normalizeRoomName(name)) }
func msgPrefix(roomID string) []byte { return []byte("msg:" + roomID + ":") }

func (b *Badger) msgKey(roomID string, at time.Time) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%012d", roomID, at.UnixNano(), b.seq.Add(1)))
}

func (b *Badger) CreateRoom(_ context.Context, name, description string) (model.Room, error) {
	now := time.Now().UTC()
	room := model.Room{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomNameKey(name)); err == nil {
			return model.ErrRoomExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		raw, err := json.Marshal(room)
		if err != nil {
			return err
		}
		if err := txn.Set(roomKey(room.ID), raw); err != nil {
			return err
		}
		return txn.Set(roomNameKey(name), []byte(room.ID))
	})
	if err != nil {
		return model.Room{}, err
	}
	return room, nil
}

func (b *Badger) FindRoomByID(_ context.Context, id string) (*model.Room, error) {
	var room *model.Room
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			room = &model.Room{}
			return json.Unmarshal(raw, room)
		})
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (b *Badger) ListRooms(ctx context.Context) ([]model.Room, error) {
	var out []model.Room
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("room:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var room model.Room
			err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &room)
			})
			if err != nil {
				return err
			}
			room.MessageCount = countMessagesTxn(txn, room.ID)
			out = append(out, room)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Most recently active first, matching how the room list renders.
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (b *Badger) DeleteRoom(ctx context.Context, id string) (*model.Room, error) {
	room, err := b.FindRoomByID(ctx, id)
	if err != nil || room == nil {
		return nil, err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(roomKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(roomNameKey(room.Name)); err != nil {
			return err
		}
		// Cascade: collect message keys first, then delete.
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := msgPrefix(id)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// CreateMessage persists the message and touches the room's updated_at
// in one transaction, so a persistence failure leaves no partial write.
func (b *Badger) CreateMessage(_ context.Context, roomID, username, text, imageURL string) (model.Message, error) {
	msg := model.Message{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		Username:    username,
		TextContent: text,
		ImageURL:    imageURL,
		CreatedAt:   time.Now().UTC(),
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(roomID))
		if err == badger.ErrKeyNotFound {
			return model.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		var room model.Room
		if err := item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, &room)
		}); err != nil {
			return err
		}

		raw, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := txn.Set(b.msgKey(roomID, msg.CreatedAt), raw); err != nil {
			return err
		}

		room.UpdatedAt = msg.CreatedAt
		roomRaw, err := json.Marshal(room)
		if err != nil {
			return err
		}
		return txn.Set(roomKey(roomID), roomRaw)
	})
	if err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// MessagesByRoom walks the room's keys newest-first, skips offset
// entries, collects up to limit and reverses the page so callers always
// see oldest-first.
func (b *Badger) MessagesByRoom(_ context.Context, roomID string, limit, offset int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	var page []model.Message
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := msgPrefix(roomID)
		// Seek past every possible key under the prefix, then walk back.
		seekKey := append(append([]byte{}, prefix...), 0xff)
		skipped := 0
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if len(page) == limit {
				break
			}
			var msg model.Message
			err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &msg)
			})
			if err != nil {
				return err
			}
			page = append(page, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

func (b *Badger) CountMessages(_ context.Context, roomID string) (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		count = countMessagesTxn(txn, roomID)
		return nil
	})
	return count, err
}

func countMessagesTxn(txn *badger.Txn, roomID string) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	prefix := msgPrefix(roomID)
	count := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		count++
	}
	return count
}
