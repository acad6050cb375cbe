// Package registry tracks every live connection and its mutable
// attributes: identity (username) and current room. It is the single
// owner of the connection -> identity map; all access goes through
// accessor methods under one lock.
package registry

import (
	"errors"
	"strings"
	"sync"

	"github.com/roomplus/roomplus/pkg/model"
)

// ConnID is the opaque per-connection handle assigned by the transport.
type ConnID string

// Conn is the transport half of a connection. Send is best-effort and
// must not block; it reports false when the peer cannot accept the frame.
type Conn interface {
	ID() ConnID
	Send(payload []byte) bool
	Close() error
}

// ErrNotRegistered is returned when an operation references a connection
// the registry no longer knows about.
var ErrNotRegistered = errors.New("connection not registered")

type entry struct {
	conn     Conn
	username string
	room     string
}

type Registry struct {
	mu      sync.RWMutex
	entries map[ConnID]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[ConnID]*entry)}
}

// Register creates an entry with no identity and no room.
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[conn.ID()] = &entry{conn: conn}
}

// Identify sets the connection's username. Duplicate usernames across
// connections are not rejected; repeated calls overwrite (last writer
// wins).
func (r *Registry) Identify(id ConnID, username string) error {
	if strings.TrimSpace(username) == "" {
		return model.ErrIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return ErrNotRegistered
	}
	e.username = username
	return nil
}

// SetRoom records the connection's current room ("" for none).
func (r *Registry) SetRoom(id ConnID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.room = room
	}
}

// Lookup returns the connection's identity and current room.
func (r *Registry) Lookup(id ConnID) (username, room string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return "", "", false
	}
	return e.username, e.room, true
}

// Username returns the identity of a connection, "" if unidentified.
func (r *Registry) Username(id ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return e.username, true
}

// Conn returns the transport handle for a connection.
func (r *Registry) Conn(id ConnID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Unregister removes the entry and reports the last-known identity and
// room so the caller can drive leave/disconnect broadcasts. A second
// call for the same connection is a no-op returning ok=false.
func (r *Registry) Unregister(id ConnID) (username, room string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return "", "", false
	}
	delete(r.entries, id)
	return e.username, e.room, true
}

// Conns snapshots every live transport handle, for global fan-out and
// shutdown.
func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.entries))
	for _, e := range r.entries {
		conns = append(conns, e.conn)
	}
	return conns
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
