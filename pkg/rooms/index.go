// Package rooms owns the room -> connection-set relation and the state
// derived from it: presence lists and ephemeral typing sets. Membership
// never outlives the owning connection; the session coordinator removes
// it on disconnect.
package rooms

import (
	"sync"

	"github.com/roomplus/roomplus/pkg/registry"
)

// Index maps room ids to the set of connections currently joined. A
// connection belongs to at most one room at a time: Join moves it out of
// its previous room first.
type Index struct {
	mu      sync.Mutex
	members map[string]map[registry.ConnID]struct{}
	current map[registry.ConnID]string
}

func NewIndex() *Index {
	return &Index{
		members: make(map[string]map[registry.ConnID]struct{}),
		current: make(map[registry.ConnID]string),
	}
}

// Join adds the connection to roomID and returns the room it was in
// before ("" if none). Re-joining the current room is a no-op that still
// returns it, so callers can suppress the leave broadcast.
func (x *Index) Join(roomID string, id registry.ConnID) (prev string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	prev = x.current[id]
	if prev == roomID {
		return prev
	}
	if prev != "" {
		x.removeLocked(prev, id)
	}
	set, ok := x.members[roomID]
	if !ok {
		set = make(map[registry.ConnID]struct{})
		x.members[roomID] = set
	}
	set[id] = struct{}{}
	x.current[id] = roomID
	return prev
}

// Leave removes the connection from the room set; idempotent if absent.
func (x *Index) Leave(roomID string, id registry.ConnID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(roomID, id)
	if x.current[id] == roomID {
		delete(x.current, id)
	}
}

func (x *Index) removeLocked(roomID string, id registry.ConnID) {
	if set, ok := x.members[roomID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(x.members, roomID)
		}
	}
}

// Members returns a snapshot of the connections in a room.
func (x *Index) Members(roomID string) []registry.ConnID {
	x.mu.Lock()
	defer x.mu.Unlock()
	set := x.members[roomID]
	ids := make([]registry.ConnID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Room returns the room the connection is currently in, if any.
func (x *Index) Room(id registry.ConnID) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	room, ok := x.current[id]
	return room, ok
}

// Occupied reports the number of connections with a current room. The
// sum of member-set sizes over all rooms always equals this count.
func (x *Index) Occupied() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.current)
}

// MemberTotal reports the sum of membership-set sizes over all rooms.
func (x *Index) MemberTotal() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	total := 0
	for _, set := range x.members {
		total += len(set)
	}
	return total
}
