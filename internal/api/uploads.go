package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/diary"
	"github.com/starford/ansuz/internal/importer"
	"github.com/starford/ansuz/internal/locator"
	"github.com/starford/ansuz/internal/storage"
)

const maxUploadBytes = 50 << 20 // 50 MB

// AudioFileHandler serves app-owned audio files and accepts uploads.
type AudioFileHandler struct {
	svc   *diary.Service
	files storage.Provider
}

// NewAudioFileHandler creates a handler rooted at the audio directory.
func NewAudioFileHandler(svc *diary.Service, files storage.Provider) *AudioFileHandler {
	return &AudioFileHandler{svc: svc, files: files}
}

// safeName validates that the filename is a plain name (no path separators,
// no traversal) and returns the absolute path under the audio dir.
func (h *AudioFileHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(h.files.Root(), cleaned)
	if !h.files.Owns(abs) {
		return "", fmt.Errorf("path escapes audio directory")
	}
	return abs, nil
}

// ServeFile handles GET /api/audio/{filename}. Range requests are honoured
// by http.ServeFile, so clients can seek.
//
//	@Summary		Download an app-owned audio file
//	@Tags			audio
//	@Produce		octet-stream
//	@Param			filename	path	string	true	"File name inside the audio directory"
//	@Success		200
//	@Failure		400	{object}	errResponse
//	@Failure		404
//	@Security		BearerAuth
//	@Router			/audio/{filename} [get]
func (h *AudioFileHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safeName(chi.URLParam(r, "filename"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if info, statErr := os.Stat(abs); statErr != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/uploads (multipart/form-data, field "file",
// optional field "title"). The clip is copied into the audio directory and
// saved as an app-owned record.
//
//	@Summary		Upload an audio clip as a new record
//	@Tags			audio
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Audio file"
//	@Param			title	formData	string	false	"Record title, defaults to the file name"
//	@Success		201		{object}	UploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/uploads [post]
func (h *AudioFileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !importer.IsAudio(name) {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported audio format: "+name))
		return
	}

	dst, err := h.files.Save(file, strings.ToLower(filepath.Ext(name)))
	if err != nil {
		slog.Error("upload: save file", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	title := r.FormValue("title")
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	rec, err := h.svc.Save(r.Context(), title, locator.FromPath(dst), 0)
	if err != nil {
		if delErr := h.files.Delete(dst); delErr != nil {
			slog.Warn("upload: remove orphan", slog.String("error", delErr.Error()))
		}
		writeError(w, "upload", err)
		return
	}

	var size int64
	if info, err := os.Stat(dst); err == nil {
		size = info.Size()
	}
	writeJSON(w, http.StatusCreated, UploadResponse{
		Record: rec,
		Size:   size,
		URL:    "/api/audio/" + filepath.Base(dst),
	})
}
