package model

import (
	"regexp"
	"time"
)

// Room is a chat room as persisted by the store. MessageCount is only
// populated on list views.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count,omitempty"`
}

// Message is a persisted chat message. At least one of TextContent and
// ImageURL is set; the server rejects messages carrying neither.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	Username    string    `json:"username"`
	TextContent string    `json:"text_content,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,20}$`)

// ValidUsername reports whether a username fits the allowed shape:
// 1-20 characters from [a-zA-Z0-9_-].
func ValidUsername(s string) bool {
	return usernameRe.MatchString(s)
}

// StatusOnline is the only presence status the system reports: a username
// is either in the list (online) or absent.
const StatusOnline = "online"

// PresenceEntry is one row of a room's user list, de-duplicated by
// username across connections.
type PresenceEntry struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}
