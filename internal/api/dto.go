package api

import (
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/player"
	"github.com/starford/ansuz/internal/recorder"
	"github.com/starford/ansuz/internal/timeline"
)

// AudioRecord is the record response type (aliased from the domain layer).
type AudioRecord = models.AudioRecord

// PlaybackState is the playback response type (aliased from the domain layer).
type PlaybackState = player.PlaybackState

// CreateRecordRequest saves the finished recording (no file_path) or imports
// an external clip.
type CreateRecordRequest struct {
	Title    string `json:"title" example:"Morning walk"`
	FilePath string `json:"file_path,omitempty" example:"/home/me/Music/memo.mp3"`
}

// RenameRecordRequest is the request body for renaming a record.
type RenameRecordRequest struct {
	Title string `json:"title" example:"Evening thoughts" validate:"required"`
}

// SeekRequest moves the playhead.
type SeekRequest struct {
	PositionMS *int `json:"position_ms" example:"15000" validate:"required"`
}

// RecordListResponse wraps record listings.
type RecordListResponse struct {
	Records []AudioRecord `json:"records" validate:"required"`
	Total   int           `json:"total" example:"42" validate:"required"`
}

// RecordingResponse describes the recording controller.
type RecordingResponse struct {
	State     string `json:"state" example:"recording" validate:"required"`
	FilePath  string `json:"file_path,omitempty"`
	Amplitude int    `json:"amplitude" example:"1200"`
}

func recordingResponse(s recorder.State, amplitude int) RecordingResponse {
	snap := recorder.Describe(s)
	return RecordingResponse{State: snap.State, FilePath: snap.FilePath, Amplitude: amplitude}
}

// TimelineItem is one row of the grouped timeline.
type TimelineItem struct {
	Type     string       `json:"type" example:"header" validate:"required"`
	Key      string       `json:"key" example:"header:Wednesday, April 10, 2024" validate:"required"`
	Title    string       `json:"title,omitempty" example:"Wednesday, April 10, 2024"`
	Record   *AudioRecord `json:"record,omitempty"`
	Clock    string       `json:"clock,omitempty" example:"08:00"`
	Duration string       `json:"duration,omitempty" example:"01:05"`
}

// TimelineResponse wraps the grouped timeline.
type TimelineResponse struct {
	Items []TimelineItem `json:"items" validate:"required"`
}

func timelineResponse(items []timeline.Item, loc *time.Location) TimelineResponse {
	out := make([]TimelineItem, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case timeline.Header:
			out = append(out, TimelineItem{Type: v.Kind().String(), Key: v.Key(), Title: v.Title})
		case timeline.Audio:
			rec := v.Record
			out = append(out, TimelineItem{
				Type:     v.Kind().String(),
				Key:      v.Key(),
				Record:   &rec,
				Clock:    timeline.FormatClock(rec.Timestamp, loc),
				Duration: timeline.FormatDuration(rec.Duration),
			})
		}
	}
	return TimelineResponse{Items: out}
}

// UploadResponse is returned after a successful audio upload.
type UploadResponse struct {
	Record AudioRecord `json:"record" validate:"required"`
	Size   int64       `json:"size" example:"12345" validate:"required"`
	URL    string      `json:"url" example:"/api/audio/audio_1712736000000.m4a" validate:"required"`
}
