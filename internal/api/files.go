package api

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/ashureev/career-advisor/internal/blob"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/go-chi/chi/v5"
)

// FileHandler handles uploads and serves stored files.
type FileHandler struct {
	blobs    *blob.Store
	maxBytes int64
}

// NewFileHandler creates a new file handler.
func NewFileHandler(blobs *blob.Store, maxBytes int64) *FileHandler {
	return &FileHandler{blobs: blobs, maxBytes: maxBytes}
}

// RegisterRoutes registers file routes. Stored files are served without a
// session so the AI collaborator can fetch them by URL.
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.With(identity.RequireSession).Post("/api/files", h.Upload)
	r.Get("/files/*", h.Serve)
}

// Upload stores the multipart "file" field for the caller.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	if r.MultipartForm != nil {
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				slog.Debug("Failed to remove multipart temp files", "error", err)
			}
		}()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	userID := identity.UserIDFromContext(r.Context())
	stored, err := h.blobs.Save(r.Context(), userID, header.Filename, header.Header.Get("Content-Type"), file)
	if errors.Is(err, blob.ErrTooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if err != nil {
		Fail(w, r, err)
		return
	}

	slog.Info("File uploaded", "user_id", userID, "key", stored.Key, "size", stored.Size)
	JSON(w, http.StatusCreated, stored)
}

// inlineTypes can be shown in the browser. Everything else is served as a
// download so uploaded markup never renders in the app's origin.
var inlineTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"text/plain": true,
}

// Serve streams a stored file.
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	f, err := h.blobs.Open(key)
	if err != nil {
		Fail(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		Fail(w, r, err)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if inlineTypes[mediaType] {
		w.Header().Set("Content-Type", contentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
	}
	w.Header().Set("Content-Security-Policy", "sandbox; default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
