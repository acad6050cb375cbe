package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Image uploads: 5 MiB cap, content sniffed (not extension-trusted),
// stored under the upload dir and served back by URL for send_image.
const maxUploadSize = 5 << 20

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+4096)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		a.respondError(w, http.StatusBadRequest, "Image must be smaller than 5MB")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		a.Log.Error("read upload", "err", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to read image")
		return
	}

	kind := mimetype.Detect(data)
	if _, ok := allowedImageTypes[kind.String()]; !ok {
		a.respondError(w, http.StatusBadRequest, "Only .jpg, .jpeg, .png, and .webp images are allowed")
		return
	}

	if err := os.MkdirAll(a.UploadDir, 0o755); err != nil {
		a.Log.Error("create upload dir", "err", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to store image")
		return
	}
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), sanitizeBase(header.Filename), kind.Extension())
	if err := os.WriteFile(filepath.Join(a.UploadDir, name), data, 0o644); err != nil {
		a.Log.Error("store upload", "err", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to store image")
		return
	}

	a.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]string{"url": "/uploads/" + name},
		"message": "Image uploaded successfully",
	})
}

// sanitizeBase strips the extension and anything path-like from a client
// supplied filename.
func sanitizeBase(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}
