// Package api is the HTTP surface around the realtime core: room CRUD,
// paginated message history, image upload, login, and health. Room
// create/delete originate here but their global events flow through the
// same broadcaster as everything else.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/roomplus/roomplus/pkg/auth"
	"github.com/roomplus/roomplus/pkg/hub"
	"github.com/roomplus/roomplus/pkg/store"
)

type API struct {
	Store     store.Store
	Hub       *hub.Hub
	Auth      *auth.Manager
	Log       *slog.Logger
	UploadDir string
}

// Register wires every route onto the mux. Destructive and
// media-accepting endpoints sit behind the token middleware.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /api/login", a.handleLogin)

	mux.HandleFunc("GET /api/rooms", a.handleListRooms)
	mux.HandleFunc("POST /api/rooms", a.handleCreateRoom)
	mux.Handle("DELETE /api/rooms/{id}", a.Auth.Middleware(http.HandlerFunc(a.handleDeleteRoom)))
	mux.HandleFunc("GET /api/rooms/{id}/messages", a.handleRoomMessages)
	mux.HandleFunc("GET /api/rooms/{id}/users", a.handleRoomUsers)

	mux.Handle("POST /api/upload", a.Auth.Middleware(http.HandlerFunc(a.handleUpload)))
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(a.UploadDir))))
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Log.Error("write response", "err", err)
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, message string) {
	a.respond(w, status, map[string]string{"error": message})
}
