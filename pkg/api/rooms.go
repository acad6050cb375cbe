package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roomplus/roomplus/pkg/model"
	"github.com/roomplus/roomplus/pkg/protocol"
)

const maxRoomNameLen = 255

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.respond(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC(),
	})
}

func (a *API) handleListRooms(w http.ResponseWriter, r *http.Request) {
	roomList, err := a.Store.ListRooms(r.Context())
	if err != nil {
		a.Log.Error("list rooms", "err", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to list rooms")
		return
	}
	a.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(roomList),
		"data":    roomList,
	})
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		a.respondError(w, http.StatusBadRequest, "Room name is required and must be a non-empty string")
		return
	}
	if len(name) > maxRoomNameLen {
		a.respondError(w, http.StatusBadRequest, "Room name must be less than 255 characters")
		return
	}

	room, err := a.Store.CreateRoom(r.Context(), name, strings.TrimSpace(req.Description))
	if errors.Is(err, model.ErrRoomExists) {
		a.respondError(w, http.StatusConflict, "Room with this name already exists")
		return
	}
	if err != nil {
		a.Log.Error("create room", "name", name, "err", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	a.Hub.BroadcastAll(protocol.EventRoomCreated, protocol.RoomCreated{Room: room, Timestamp: time.Now().UTC()})
	a.respond(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    room,
		"message": "Room created successfully",
	})
}

func (a *API) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	room, err := a.Store.DeleteRoom(r.Context(), id)
	if err != nil {
		a.Log.Error("delete room", "room", id, "err", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to delete room")
		return
	}
	if room == nil {
		a.respondError(w, http.StatusNotFound, "Room not found")
		return
	}

	a.Hub.BroadcastAll(protocol.EventRoomDeleted, protocol.RoomDeleted{RoomID: id, Timestamp: time.Now().UTC()})
	a.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    room,
		"message": "Room deleted successfully",
	})
}

func (a *API) handleRoomMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	room, err := a.Store.FindRoomByID(r.Context(), id)
	if err != nil {
		a.Log.Error("room lookup", "room", id, "err", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to load room")
		return
	}
	if room == nil {
		a.respondError(w, http.StatusNotFound, "Room not found")
		return
	}

	messages, err := a.Store.MessagesByRoom(r.Context(), id, limit, offset)
	if err != nil {
		a.Log.Error("load messages", "room", id, "err", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	total, err := a.Store.CountMessages(r.Context(), id)
	if err != nil {
		a.Log.Error("count messages", "room", id, "err", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	if messages == nil {
		messages = []model.Message{}
	}
	a.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    messages,
		"pagination": map[string]any{
			"limit":   limit,
			"offset":  offset,
			"total":   total,
			"hasMore": offset+limit < total,
		},
	})
}

// handleRoomUsers serves the live presence list straight from the hub;
// unlike history this never touches the store.
func (a *API) handleRoomUsers(w http.ResponseWriter, r *http.Request) {
	users := a.Hub.PresenceList(r.PathValue("id"))
	a.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(users),
		"data":    users,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
