// Package media defines the contracts of the capture, playback and metadata
// engines the diary drives, and ships ffmpeg/oto backed implementations.
package media

import (
	"context"
	"errors"
	"fmt"
)

// Capture configuration values.
const (
	SourceSpeech   = "speech"
	ContainerMPEG4 = "mp4"
	EncoderAAC     = "aac"
)

// Defaults used for speech recordings.
const (
	DefaultSampleRate = 44100
	DefaultBitRate    = 128000
)

var (
	// ErrInvalidState is returned when a session method is called out of order.
	ErrInvalidState = errors.New("media: invalid session state")
	// ErrReleased is returned by any call on a released session.
	ErrReleased = errors.New("media: session released")
)

// CaptureConfig describes one capture session.
type CaptureConfig struct {
	Source     string
	Container  string
	Encoder    string
	SampleRate int
	BitRate    int
	OutputPath string
}

// SpeechConfig returns the configuration used for diary recordings.
func SpeechConfig(outputPath string) CaptureConfig {
	return CaptureConfig{
		Source:     SourceSpeech,
		Container:  ContainerMPEG4,
		Encoder:    EncoderAAC,
		SampleRate: DefaultSampleRate,
		BitRate:    DefaultBitRate,
		OutputPath: outputPath,
	}
}

// Validate checks that the configuration is complete.
func (c CaptureConfig) Validate() error {
	switch {
	case c.OutputPath == "":
		return fmt.Errorf("media: capture output path is required")
	case c.SampleRate <= 0:
		return fmt.Errorf("media: invalid sample rate %d", c.SampleRate)
	case c.BitRate <= 0:
		return fmt.Errorf("media: invalid bit rate %d", c.BitRate)
	case c.Container != ContainerMPEG4:
		return fmt.Errorf("media: unsupported container %q", c.Container)
	case c.Encoder != EncoderAAC:
		return fmt.Errorf("media: unsupported encoder %q", c.Encoder)
	}
	return nil
}

// CaptureSession is one hardware capture handle. The call order is
// Configure → Prepare → Start → (MaxAmplitude)* → Stop → Release. Any step
// may fail. Release is always safe to call.
type CaptureSession interface {
	Configure(cfg CaptureConfig) error
	Prepare() error
	Start() error
	// MaxAmplitude returns the peak input level (0..32767) observed since
	// the previous call.
	MaxAmplitude() int
	Stop() error
	Release() error
}

// CaptureEngine opens capture sessions.
type CaptureEngine interface {
	NewCaptureSession() (CaptureSession, error)
}

// PlaybackSession is one hardware playback handle. Positions and durations
// are in milliseconds. Callbacks run on engine goroutines.
type PlaybackSession interface {
	SetSource(src string) error
	// PrepareAsync prepares the source in the background and calls
	// onPrepared when ready. Failures are reported through the error
	// callback.
	PrepareAsync(onPrepared func())
	Start() error
	Pause() error
	SeekTo(ms int) error
	Stop() error
	Release() error
	IsPlaying() bool
	CurrentPosition() int
	Duration() int
	SetOnCompletion(fn func())
	SetOnError(fn func(error))
}

// PlaybackEngine opens playback sessions.
type PlaybackEngine interface {
	NewPlaybackSession() (PlaybackSession, error)
}

// MetadataExtractor reads a clip's duration in milliseconds.
type MetadataExtractor interface {
	Duration(ctx context.Context, src string) (int64, error)
}
