package rooms

import (
	"sort"
	"sync"
)

// Typing tracks the ephemeral per-(room, username) typing flag. Nothing
// is persisted and nothing is time-boxed server-side: the client sends
// the stop event after its idle timeout, and the coordinator clears the
// flag on room leave and disconnect. A client that never sends stop
// leaves the flag stuck until it disconnects.
type Typing struct {
	mu     sync.Mutex
	byRoom map[string]map[string]struct{}
}

func NewTyping() *Typing {
	return &Typing{byRoom: make(map[string]map[string]struct{})}
}

// Set flips the typing flag for a username in a room.
func (t *Typing) Set(roomID, username string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.byRoom[roomID]
	if isTyping {
		if !ok {
			set = make(map[string]struct{})
			t.byRoom[roomID] = set
		}
		set[username] = struct{}{}
		return
	}
	if ok {
		delete(set, username)
		if len(set) == 0 {
			delete(t.byRoom, roomID)
		}
	}
}

// List returns the usernames currently typing in a room, sorted.
// Excluding the requester's own name is a client-side rendering rule.
func (t *Typing) List(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.byRoom[roomID]
	names := make([]string, 0, len(set))
	for username := range set {
		names = append(names, username)
	}
	sort.Strings(names)
	return names
}
