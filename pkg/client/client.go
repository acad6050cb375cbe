// Package client is the client-side counterpart of the realtime server:
// it owns the websocket, a bounded reconnect policy, the outbound queue
// used while disconnected, and the last-joined-room pointer replayed
// after a reconnect. Room membership looks durable across a network blip
// only because this agent re-issues the join; the server keeps no
// session across disconnects.
package client

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomplus/roomplus/pkg/protocol"
)

type Config struct {
	// ServerURL is the websocket endpoint, e.g. ws://localhost:3000/ws.
	ServerURL string
	// APIURL is the REST base, e.g. http://localhost:3000.
	APIURL   string
	Username string

	// Fixed-cap, fixed-delay reconnect policy. No exponential backoff.
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// TypingIdle is how long after the last keystroke the stop-typing
	// intent fires.
	TypingIdle time.Duration

	// PageSize is the history backfill page size.
	PageSize int

	// Notify receives user-facing notices (connection lost, terminal
	// reconnection failure).
	Notify func(message string)

	Log *slog.Logger
}

// Handler receives the raw payload of one server event.
type Handler func(data json.RawMessage)

type queued struct {
	event   string
	payload any
}

type Session struct {
	cfg Config
	log *slog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	closing     bool
	queue       []queued
	lastRoom    string
	held        int
	hasMore     bool
	token       string
	typingTimer *time.Timer

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]Handler
}

func New(cfg Config) *Session {
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Session{
		cfg:      cfg,
		log:      cfg.Log,
		hasMore:  true,
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for a server event.
func (s *Session) On(event string, h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

// Connect dials the server once and identifies. The reconnect policy
// only covers drops of an established connection.
func (s *Session) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.cfg.ServerURL, nil)
	if err != nil {
		return err
	}
	s.onConnected(conn)
	return nil
}

func (s *Session) onConnected(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	go s.readLoop(conn)

	s.write(conn, protocol.EventConnectUser, protocol.ConnectUser{Username: s.cfg.Username})
	s.resync(conn)
}

// resync restores server-side state after a (re)connect: first the last
// known room is rejoined, then the queued events are flushed in original
// order. Nothing is de-duplicated. If the connection dies mid-flush the
// unflushed remainder goes back to the head of the queue, ahead of
// anything queued meanwhile, so the next reconnect picks up where this
// one failed.
func (s *Session) resync(conn *websocket.Conn) {
	s.mu.Lock()
	room := s.lastRoom
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	if room != "" {
		if err := s.write(conn, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: room, Username: s.cfg.Username}); err != nil {
			s.requeueFront(pending)
			return
		}
	}
	for i, q := range pending {
		if err := s.write(conn, q.event, q.payload); err != nil {
			s.requeueFront(pending[i:])
			return
		}
	}
}

func (s *Session) requeueFront(items []queued) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	s.queue = append(append([]queued(nil), items...), s.queue...)
	s.mu.Unlock()
	s.log.Debug("requeued after failed flush", "events", len(items))
}

// Emit sends an event now, or queues it while disconnected. connect_user
// is transport lifecycle and never queued; it is replayed by the
// reconnect path itself.
func (s *Session) Emit(event string, payload any) {
	s.mu.Lock()
	if !s.connected {
		if event != protocol.EventConnectUser {
			s.queue = append(s.queue, queued{event: event, payload: payload})
			s.log.Debug("queued while disconnected", "event", event)
		}
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.mu.Unlock()
	s.write(conn, event, payload)
}

// write reports transport failures so callers can requeue; an encode
// failure is the payload's fault, is logged and returns nil rather
// than letting a bad event wedge the queue forever.
func (s *Session) write(conn *websocket.Conn, event string, payload any) error {
	raw, err := protocol.Encode(event, payload)
	if err != nil {
		s.log.Error("encode event", "event", event, "err", err)
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		// The read loop sees the same failure and drives reconnection.
		s.log.Debug("write failed", "event", event, "err", err)
		return err
	}
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.dispatch(raw)
	}

	s.mu.Lock()
	if s.conn == conn {
		s.connected = false
	}
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return
	}
	s.notify("Connection lost, reconnecting...")
	s.reconnect()
}

func (s *Session) dispatch(raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Debug("unreadable frame", "err", err)
		return
	}

	// Bookkeeping for backfill offsets: the join snapshot resets the
	// held count, every live message grows it.
	switch env.Event {
	case protocol.EventRoomJoined:
		var p protocol.RoomJoined
		if json.Unmarshal(env.Data, &p) == nil {
			s.mu.Lock()
			s.held = len(p.Messages)
			s.hasMore = true
			s.mu.Unlock()
		}
	case protocol.EventReceiveMessage:
		s.mu.Lock()
		s.held++
		s.mu.Unlock()
	}

	s.handlersMu.RLock()
	handlers := append([]Handler(nil), s.handlers[env.Event]...)
	s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(env.Data)
	}
}

// reconnect retries with a fixed delay up to the attempt cap, then
// surfaces a terminal notice and gives up.
func (s *Session) reconnect() {
	for attempt := 1; attempt <= s.cfg.ReconnectAttempts; attempt++ {
		time.Sleep(s.cfg.ReconnectDelay)

		s.mu.Lock()
		closing := s.closing
		s.mu.Unlock()
		if closing {
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.cfg.ServerURL, nil)
		if err != nil {
			s.log.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
			continue
		}
		s.notify("Reconnected")
		s.onConnected(conn)
		return
	}
	s.notify("Failed to reconnect to server. Please refresh the page.")
}

// JoinRoom records the room as the new resync target and issues the join
// intent (or queues it while disconnected).
func (s *Session) JoinRoom(roomID string) {
	s.cancelTypingTimer()
	s.mu.Lock()
	s.lastRoom = roomID
	s.held = 0
	s.hasMore = true
	s.mu.Unlock()
	s.Emit(protocol.EventJoinRoom, protocol.JoinRoom{RoomID: roomID, Username: s.cfg.Username})
}

// SendMessage posts text to the current room and ends any typing burst.
func (s *Session) SendMessage(text string) {
	room := s.CurrentRoom()
	if room == "" {
		s.notify("Join a room first")
		return
	}
	s.Emit(protocol.EventSendMessage, protocol.SendMessage{RoomID: room, Username: s.cfg.Username, Text: text})
	s.StopTyping()
}

// SendImage posts an already-uploaded image URL to the current room.
func (s *Session) SendImage(imageURL string) {
	room := s.CurrentRoom()
	if room == "" {
		s.notify("Join a room first")
		return
	}
	s.Emit(protocol.EventSendImage, protocol.SendImage{RoomID: room, Username: s.cfg.Username, ImageURL: imageURL})
}

// StartTyping emits a typing intent for every keystroke and (re)arms the
// idle timer that will emit the single stop intent.
func (s *Session) StartTyping() {
	s.mu.Lock()
	room := s.lastRoom
	if room == "" {
		s.mu.Unlock()
		return
	}
	if s.typingTimer == nil {
		s.typingTimer = time.AfterFunc(s.cfg.TypingIdle, s.typingExpired)
	} else {
		s.typingTimer.Reset(s.cfg.TypingIdle)
	}
	s.mu.Unlock()

	s.Emit(protocol.EventUserTyping, protocol.Typing{RoomID: room, Username: s.cfg.Username, IsTyping: true})
}

// StopTyping ends the current typing burst, if any.
func (s *Session) StopTyping() {
	s.mu.Lock()
	active := s.typingTimer != nil
	if active {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	room := s.lastRoom
	s.mu.Unlock()

	if active && room != "" {
		s.Emit(protocol.EventUserStopTyping, protocol.Typing{RoomID: room, Username: s.cfg.Username})
	}
}

func (s *Session) typingExpired() {
	s.mu.Lock()
	s.typingTimer = nil
	room := s.lastRoom
	s.mu.Unlock()
	if room != "" {
		s.Emit(protocol.EventUserStopTyping, protocol.Typing{RoomID: room, Username: s.cfg.Username})
	}
}

func (s *Session) cancelTypingTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
}

// Close tears the session down; no reconnection is attempted afterward.
func (s *Session) Close() {
	s.cancelTypingTimer()
	s.mu.Lock()
	s.closing = true
	conn := s.conn
	s.connected = false
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		conn.Close()
	}
}

// CurrentRoom returns the last joined room id, "" if none.
func (s *Session) CurrentRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRoom
}

// Connected reports whether the transport is currently up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// QueueLen reports the number of events waiting for a reconnect.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// HasMore reports whether older history remains to backfill.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

func (s *Session) notify(message string) {
	if s.cfg.Notify != nil {
		s.cfg.Notify(message)
		return
	}
	s.log.Info(message)
}
