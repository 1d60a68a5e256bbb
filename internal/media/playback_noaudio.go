//go:build noaudio

package media

import (
	"errors"
	"log/slog"
)

// ErrNoAudio is returned by playback engines in builds without audio output.
var ErrNoAudio = errors.New("media: built without audio output")

// OtoPlayback is a stand-in for builds tagged noaudio.
type OtoPlayback struct{}

func NewOtoPlayback(string, MetadataExtractor, *slog.Logger) *OtoPlayback {
	return &OtoPlayback{}
}

func (e *OtoPlayback) NewPlaybackSession() (PlaybackSession, error) {
	return nil, ErrNoAudio
}
