package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/diary"
	"github.com/starford/ansuz/internal/player"
	"github.com/starford/ansuz/internal/recorder"
)

// Handler holds API route handlers.
type Handler struct {
	svc *diary.Service
	rec *recorder.Controller
	pl  *player.Controller
	loc *time.Location
}

// NewHandler creates a new Handler. Timeline dates are grouped in loc.
func NewHandler(svc *diary.Service, rec *recorder.Controller, pl *player.Controller, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{svc: svc, rec: rec, pl: pl, loc: loc}
}

// writeError maps domain errors to HTTP statuses. Unknown errors are logged
// and reported as 500.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidRecord):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAlreadyRecording),
		errors.Is(err, apperr.ErrNotRecording),
		errors.Is(err, apperr.ErrNoPendingRecording):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid record id"))
		return 0, false
	}
	return id, true
}

// ListRecords handles GET /api/records.
//
//	@Summary		List records, newest first
//	@Tags			records
//	@Produce		json
//	@Success		200		{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	if records == nil {
		records = []AudioRecord{}
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: records, Total: len(records)})
}

// GetRecord handles GET /api/records/{id}.
//
//	@Summary		Get a single record
//	@Tags			records
//	@Produce		json
//	@Param			id	path		int	true	"Record id"
//	@Success		200	{object}	AudioRecord
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateRecord handles POST /api/records. Without file_path the finished
// recording is saved; with it an external clip is imported.
//
//	@Summary		Save the finished recording or import a clip
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateRecordRequest	true	"Record to create"
//	@Success		201		{object}	AudioRecord
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records [post]
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if err := readJSON(w, r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	var (
		rec AudioRecord
		err error
	)
	if req.FilePath == "" {
		rec, err = h.svc.SaveRecording(r.Context(), h.rec, req.Title)
	} else {
		rec, err = h.svc.Import(r.Context(), req.FilePath, req.Title)
	}
	if err != nil {
		writeError(w, "create record", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// RenameRecord handles PATCH /api/records/{id}.
//
//	@Summary		Rename a record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Record id"
//	@Param			body	body		RenameRecordRequest	true	"New title"
//	@Success		200		{object}	AudioRecord
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [patch]
func (h *Handler) RenameRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req RenameRecordRequest
	if err := readJSON(w, r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	rec, err := h.svc.Rename(r.Context(), id, req.Title)
	if err != nil {
		writeError(w, "rename record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteRecord handles DELETE /api/records/{id}.
//
//	@Summary		Delete a record
//	@Tags			records
//	@Param			id	path	int	true	"Record id"
//	@Success		204	"Record deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if h.pl.State().IsCurrent(id) {
		h.pl.Release()
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, "delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Timeline handles GET /api/timeline.
//
//	@Summary		Records grouped by calendar date
//	@Tags			records
//	@Produce		json
//	@Param			tz	query		string	false	"IANA time zone, defaults to the server zone"
//	@Success		200	{object}	TimelineResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/timeline [get]
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	loc := h.loc
	if tz := r.URL.Query().Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("unknown time zone"))
			return
		}
		loc = l
	}
	items, err := h.svc.Timeline(r.Context(), loc)
	if err != nil {
		writeError(w, "timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse(items, loc))
}

// GetRecording handles GET /api/recording.
//
//	@Summary		Recording controller state
//	@Tags			recording
//	@Produce		json
//	@Success		200	{object}	RecordingResponse
//	@Security		BearerAuth
//	@Router			/recording [get]
func (h *Handler) GetRecording(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, recordingResponse(h.rec.State(), h.rec.Amplitude()))
}

// StartRecording handles POST /api/recording/start.
//
//	@Summary		Start capturing from the microphone
//	@Tags			recording
//	@Produce		json
//	@Success		200	{object}	RecordingResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recording/start [post]
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	if err := h.rec.Start(r.Context()); err != nil {
		writeError(w, "start recording", err)
		return
	}
	writeJSON(w, http.StatusOK, recordingResponse(h.rec.State(), h.rec.Amplitude()))
}

// StopRecording handles POST /api/recording/stop.
//
//	@Summary		Finish the current capture
//	@Tags			recording
//	@Produce		json
//	@Success		200	{object}	RecordingResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recording/stop [post]
func (h *Handler) StopRecording(w http.ResponseWriter, _ *http.Request) {
	if err := h.rec.Stop(); err != nil {
		writeError(w, "stop recording", err)
		return
	}
	writeJSON(w, http.StatusOK, recordingResponse(h.rec.State(), h.rec.Amplitude()))
}

// CancelRecording handles POST /api/recording/cancel.
//
//	@Summary		Discard the current or finished capture
//	@Tags			recording
//	@Produce		json
//	@Success		200	{object}	RecordingResponse
//	@Security		BearerAuth
//	@Router			/recording/cancel [post]
func (h *Handler) CancelRecording(w http.ResponseWriter, _ *http.Request) {
	h.rec.CleanupPendingRecording()
	writeJSON(w, http.StatusOK, recordingResponse(h.rec.State(), h.rec.Amplitude()))
}

// GetPlayback handles GET /api/playback.
//
//	@Summary		Playback state
//	@Tags			playback
//	@Produce		json
//	@Success		200	{object}	PlaybackState
//	@Security		BearerAuth
//	@Router			/playback [get]
func (h *Handler) GetPlayback(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pl.State())
}

// TogglePlayback handles POST /api/playback/{id}/toggle.
//
//	@Summary		Play, pause or switch to a record
//	@Tags			playback
//	@Produce		json
//	@Param			id	path		int	true	"Record id"
//	@Success		200	{object}	PlaybackState
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/playback/{id}/toggle [post]
func (h *Handler) TogglePlayback(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "toggle playback", err)
		return
	}
	if err := h.pl.OnPlayPause(r.Context(), rec); err != nil {
		writeError(w, "toggle playback", err)
		return
	}
	writeJSON(w, http.StatusOK, h.pl.State())
}

// PausePlayback handles POST /api/playback/pause.
//
//	@Summary		Pause playback
//	@Tags			playback
//	@Produce		json
//	@Success		200	{object}	PlaybackState
//	@Security		BearerAuth
//	@Router			/playback/pause [post]
func (h *Handler) PausePlayback(w http.ResponseWriter, _ *http.Request) {
	h.pl.Pause()
	writeJSON(w, http.StatusOK, h.pl.State())
}

// SeekPlayback handles POST /api/playback/seek.
//
//	@Summary		Move the playhead
//	@Tags			playback
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SeekRequest	true	"Position"
//	@Success		200		{object}	PlaybackState
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/playback/seek [post]
func (h *Handler) SeekPlayback(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := readJSON(w, r, 1<<10, &req); err != nil || req.PositionMS == nil || *req.PositionMS < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("position_ms must be a non-negative integer"))
		return
	}
	h.pl.SeekTo(*req.PositionMS)
	writeJSON(w, http.StatusOK, h.pl.State())
}

// ReleasePlayback handles POST /api/playback/release.
//
//	@Summary		Stop playback and unload the record
//	@Tags			playback
//	@Produce		json
//	@Success		200	{object}	PlaybackState
//	@Security		BearerAuth
//	@Router			/playback/release [post]
func (h *Handler) ReleasePlayback(w http.ResponseWriter, _ *http.Request) {
	h.pl.Release()
	writeJSON(w, http.StatusOK, h.pl.State())
}
