package store

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roomplus/roomplus/pkg/model"
)

func openTestStore(t *testing.T) *Badger {
	t.Helper()
	b, err := OpenBadgerInMemory(slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBadger_CreateRoom_And_Find(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	room, err := b.CreateRoom(ctx, "general", "everything else")
	req.NoError(err)
	req.NotEmpty(room.ID)
	req.Equal("general", room.Name)
	req.Equal(room.CreatedAt, room.UpdatedAt)

	found, err := b.FindRoomByID(ctx, room.ID)
	req.NoError(err)
	req.NotNil(found)
	req.Equal(room.ID, found.ID)

	missing, err := b.FindRoomByID(ctx, "nope")
	req.NoError(err)
	req.Nil(missing)
}

func TestBadger_CreateRoom_Rejects_Duplicate_Names(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	_, err := b.CreateRoom(ctx, "general", "")
	req.NoError(err)

	_, err = b.CreateRoom(ctx, "general", "again")
	req.ErrorIs(err, model.ErrRoomExists)
}

func TestBadger_CreateRoom_Name_Uniqueness_Ignores_Case(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	room, err := b.CreateRoom(ctx, "general", "")
	req.NoError(err)

	_, err = b.CreateRoom(ctx, "General", "")
	req.ErrorIs(err, model.ErrRoomExists)
	_, err = b.CreateRoom(ctx, "GENERAL", "")
	req.ErrorIs(err, model.ErrRoomExists)

	// Deleting the room frees the name in any case.
	_, err = b.DeleteRoom(ctx, room.ID)
	req.NoError(err)
	created, err := b.CreateRoom(ctx, "General", "")
	req.NoError(err)
	req.Equal("General", created.Name)
}

func TestBadger_CreateMessage_Requires_Room_And_Touches_It(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	_, err := b.CreateMessage(ctx, "ghost", "alice", "hi", "")
	req.ErrorIs(err, model.ErrRoomNotFound)

	room, err := b.CreateRoom(ctx, "general", "")
	req.NoError(err)

	msg, err := b.CreateMessage(ctx, room.ID, "alice", "hi", "")
	req.NoError(err)
	req.NotEmpty(msg.ID)
	req.Equal(room.ID, msg.RoomID)

	// The room's activity timestamp follows its latest message.
	after, err := b.FindRoomByID(ctx, room.ID)
	req.NoError(err)
	req.Equal(msg.CreatedAt, after.UpdatedAt)
	req.True(after.UpdatedAt.After(room.UpdatedAt) || after.UpdatedAt.Equal(room.UpdatedAt))
}

func TestBadger_MessagesByRoom_Pagination(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	room, err := b.CreateRoom(ctx, "general", "")
	req.NoError(err)
	for i := 0; i < 75; i++ {
		_, err := b.CreateMessage(ctx, room.ID, "alice", fmt.Sprintf("m%03d", i), "")
		req.NoError(err)
	}

	total, err := b.CountMessages(ctx, room.ID)
	req.NoError(err)
	req.Equal(75, total)

	// First page: the 50 newest, oldest-first within the page.
	page, err := b.MessagesByRoom(ctx, room.ID, 50, 0)
	req.NoError(err)
	req.Len(page, 50)
	req.Equal("m025", page[0].TextContent)
	req.Equal("m074", page[49].TextContent)

	// Second page: the remaining 25 older ones.
	page, err = b.MessagesByRoom(ctx, room.ID, 50, 50)
	req.NoError(err)
	req.Len(page, 25)
	req.Equal("m000", page[0].TextContent)
	req.Equal("m024", page[24].TextContent)

	// Past the end.
	page, err = b.MessagesByRoom(ctx, room.ID, 50, 100)
	req.NoError(err)
	req.Empty(page)
}

func TestBadger_MessagesByRoom_Isolated_Per_Room(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	r1, err := b.CreateRoom(ctx, "general", "")
	req.NoError(err)
	r2, err := b.CreateRoom(ctx, "random", "")
	req.NoError(err)

	_, err = b.CreateMessage(ctx, r1.ID, "alice", "one", "")
	req.NoError(err)
	_, err = b.CreateMessage(ctx, r2.ID, "bob", "two", "")
	req.NoError(err)

	page, err := b.MessagesByRoom(ctx, r1.ID, 50, 0)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("one", page[0].TextContent)
}

func TestBadger_DeleteRoom_Cascades_Messages(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	room, err := b.CreateRoom(ctx, "general", "")
	req.NoError(err)
	for i := 0; i < 5; i++ {
		_, err := b.CreateMessage(ctx, room.ID, "alice", "hi", "")
		req.NoError(err)
	}

	deleted, err := b.DeleteRoom(ctx, room.ID)
	req.NoError(err)
	req.NotNil(deleted)
	req.Equal(room.ID, deleted.ID)

	count, err := b.CountMessages(ctx, room.ID)
	req.NoError(err)
	req.Zero(count)

	// The name frees up for reuse.
	_, err = b.CreateRoom(ctx, "general", "")
	req.NoError(err)

	// Deleting again reports absence, not an error.
	gone, err := b.DeleteRoom(ctx, room.ID)
	req.NoError(err)
	req.Nil(gone)
}

func TestBadger_ListRooms_Orders_By_Activity(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	r1, err := b.CreateRoom(ctx, "general", "")
	req.NoError(err)
	r2, err := b.CreateRoom(ctx, "random", "")
	req.NoError(err)

	// Activity in the older room bumps it to the top.
	_, err = b.CreateMessage(ctx, r1.ID, "alice", "hi", "")
	req.NoError(err)

	out, err := b.ListRooms(ctx)
	req.NoError(err)
	req.Len(out, 2)
	req.Equal(r1.ID, out[0].ID)
	req.Equal(1, out[0].MessageCount)
	req.Equal(r2.ID, out[1].ID)
	req.Zero(out[1].MessageCount)
}
