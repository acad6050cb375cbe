package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/roomplus/roomplus/pkg/model"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

type errorResponse struct {
	Error string `json:"error"`
}

// Login exchanges the configured username for a bearer token. The token
// is kept on the session and sent with authenticated requests.
func (s *Session) Login(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"username": s.cfg.Username})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Token string `json:"token"`
	}
	if err := s.doJSON(req, &out); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = out.Token
	s.mu.Unlock()
	return nil
}

// Rooms lists the rooms known to the server.
func (s *Session) Rooms(ctx context.Context) ([]model.Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIURL+"/api/rooms", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []model.Room `json:"data"`
	}
	if err := s.doJSON(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateRoom creates a room and returns it.
func (s *Session) CreateRoom(ctx context.Context, name, description string) (*model.Room, error) {
	body, _ := json.Marshal(map[string]string{"name": name, "description": description})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL+"/api/rooms", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Data *model.Room `json:"data"`
	}
	if err := s.doJSON(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Backfill fetches the next page of older history for the current room.
// The offset is the number of messages the caller already holds, which
// the session tracks from the join snapshot and live deliveries; pages
// arrive oldest-first within the page.
func (s *Session) Backfill(ctx context.Context) ([]model.Message, error) {
	s.mu.Lock()
	room := s.lastRoom
	offset := s.held
	more := s.hasMore
	s.mu.Unlock()

	if room == "" {
		return nil, fmt.Errorf("no room joined")
	}
	if !more {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/api/rooms/%s/messages?limit=%d&offset=%d",
		s.cfg.APIURL, url.PathEscape(room), s.cfg.PageSize, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data       []model.Message `json:"data"`
		Pagination struct {
			HasMore bool `json:"hasMore"`
		} `json:"pagination"`
	}
	if err := s.doJSON(req, &out); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.lastRoom == room {
		s.held += len(out.Data)
		s.hasMore = out.Pagination.HasMore
	}
	s.mu.Unlock()
	return out.Data, nil
}

// UploadImage uploads a local image file and returns the URL to pass to
// SendImage. Requires a prior Login.
func (s *Session) UploadImage(ctx context.Context, path string) (string, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return "", fmt.Errorf("login required before uploading")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL+"/api/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	var out struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := s.doJSON(req, &out); err != nil {
		return "", err
	}
	return s.cfg.APIURL + out.Data.URL, nil
}

func (s *Session) doJSON(req *http.Request, dst any) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if dst == nil {
		return nil
	}
	return json.Unmarshal(body, dst)
}
