// Package models defines the domain types for the audio diary.
package models

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/apperr"
)

// MaxTitleLength bounds the user-supplied title, in runes.
const MaxTitleLength = 200

// AudioRecord is one persisted diary entry.
//
// ID is assigned by the store on first insert; zero means the record has not
// been stored yet. Timestamp (ms since epoch) is fixed at creation and drives
// both display and ordering. Duration (ms) is computed once when the record
// is created.
type AudioRecord struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	FilePath  string `json:"file_path"`
	Timestamp int64  `json:"timestamp"`
	Duration  int64  `json:"duration"`
}

// IsNew reports whether the record still needs an id from the store.
func (r AudioRecord) IsNew() bool {
	return r.ID == 0
}

// CreatedAt returns Timestamp as a time.Time.
func (r AudioRecord) CreatedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Length returns Duration as a time.Duration.
func (r AudioRecord) Length() time.Duration {
	return time.Duration(r.Duration) * time.Millisecond
}

// Validate checks the record before it is written.
func (r AudioRecord) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.RuneLength(1, MaxTitleLength)),
		validation.Field(&r.FilePath, validation.Required),
		validation.Field(&r.Timestamp, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Duration, validation.Min(int64(0))),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidRecord, err)
	}
	return nil
}

// NormalizeTitle trims surrounding whitespace from a user-supplied title.
func NormalizeTitle(title string) string {
	return strings.TrimSpace(title)
}
