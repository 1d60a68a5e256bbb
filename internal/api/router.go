package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/diary"
	"github.com/starford/ansuz/internal/player"
	"github.com/starford/ansuz/internal/recorder"
	"github.com/starford/ansuz/internal/storage"
)

// Deps groups what the API serves.
type Deps struct {
	Diary    *diary.Service
	Recorder *recorder.Controller
	Player   *player.Controller
	Files    storage.Provider
	// Location groups the timeline when the request names no zone.
	Location *time.Location
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(d Deps, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(d.Diary, d.Recorder, d.Player, d.Location)
	ah := NewAudioFileHandler(d.Diary, d.Files)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Records.
	r.Get("/records", h.ListRecords)
	r.Post("/records", h.CreateRecord)
	r.Get("/records/{id}", h.GetRecord)
	r.Patch("/records/{id}", h.RenameRecord)
	r.Delete("/records/{id}", h.DeleteRecord)
	r.Get("/timeline", h.Timeline)

	// Capture.
	r.Get("/recording", h.GetRecording)
	r.Post("/recording/start", h.StartRecording)
	r.Post("/recording/stop", h.StopRecording)
	r.Post("/recording/cancel", h.CancelRecording)

	// Playback.
	r.Get("/playback", h.GetPlayback)
	r.Post("/playback/{id}/toggle", h.TogglePlayback)
	r.Post("/playback/pause", h.PausePlayback)
	r.Post("/playback/seek", h.SeekPlayback)
	r.Post("/playback/release", h.ReleasePlayback)

	// Audio files.
	r.Post("/uploads", ah.Upload)
	r.Get("/audio/{filename}", ah.ServeFile)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
