package tui

import (
	"github.com/starford/ansuz/internal/player"
	"github.com/starford/ansuz/internal/recorder"
	"github.com/starford/ansuz/internal/timeline"
)

// ItemsMsg carries a new timeline projection.
type ItemsMsg struct {
	Items []timeline.Item
}

// RecordingStateMsg carries a recorder state transition.
type RecordingStateMsg struct {
	State recorder.State
}

// AmplitudeMsg carries the latest input level.
type AmplitudeMsg struct {
	Level int
}

// PlaybackMsg carries a playback snapshot.
type PlaybackMsg struct {
	State player.PlaybackState
}

// NoticeMsg is a user-visible notification, e.g. a playback error.
type NoticeMsg struct {
	Text string
}

// ErrMsg reports a failed action.
type ErrMsg struct {
	Err error
}

// SavedMsg is sent after the finished recording was stored.
type SavedMsg struct {
	Title string
}

// DeletedMsg is sent after a record was removed.
type DeletedMsg struct {
	ID int64
}

// ClearStatusMsg clears a transient status line.
type ClearStatusMsg struct{}

// streamClosedMsg ends a subscription loop.
type streamClosedMsg struct{}
