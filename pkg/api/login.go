package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/roomplus/roomplus/pkg/model"
)

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		a.respondError(w, http.StatusBadRequest, "username is required")
		return
	}
	if !model.ValidUsername(username) {
		a.respondError(w, http.StatusBadRequest, "Username must be 1-20 characters: letters, numbers, - and _")
		return
	}

	token, err := a.Auth.GenerateToken(username)
	if err != nil {
		a.Log.Error("generate token", "user", username, "err", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	a.respond(w, http.StatusOK, loginResponse{Token: token})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
