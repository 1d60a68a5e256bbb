package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/media"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Audio  AudioConfig       `yaml:"audio"`
	Import ImportConfig      `yaml:"import"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Events EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Audio.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Events.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// TimeZone groups the timeline by day; empty means the system zone.
	TimeZone string `yaml:"time_zone"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.TimeZone, validation.By(func(v any) error {
			if tz, _ := v.(string); tz != "" {
				if _, err := time.LoadLocation(tz); err != nil {
					return errors.New("unknown time zone")
				}
			}
			return nil
		})),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// Location returns the configured zone.
func (c *ApplicationConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AudioConfig holds capture, playback and audio storage settings.
type AudioConfig struct {
	// Dir is the app-private directory recordings are written to.
	Dir        string `yaml:"dir"`
	SampleRate int    `yaml:"sample_rate"`
	BitRate    int    `yaml:"bit_rate"`
	// InputFormat and InputDevice select the ffmpeg capture input, e.g.
	// "pulse"/"default", "avfoundation"/":0" or "dshow"/"audio=Microphone".
	InputFormat       string        `yaml:"input_format"`
	InputDevice       string        `yaml:"input_device"`
	AmplitudeInterval time.Duration `yaml:"amplitude_interval"`
	ProgressInterval  time.Duration `yaml:"progress_interval"`
	FFmpegPath        string        `yaml:"ffmpeg_path"`
	FFprobePath       string        `yaml:"ffprobe_path"`
}

// Validate validates the audio configuration.
func (c *AudioConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.SampleRate, validation.Required, validation.Min(8000), validation.Max(192000)),
		validation.Field(&c.BitRate, validation.Required, validation.Min(8000), validation.Max(512000)),
		validation.Field(&c.InputFormat, validation.Required),
		validation.Field(&c.AmplitudeInterval, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.ProgressInterval, validation.Required, validation.Min(10*time.Millisecond)),
	)
}

// CaptureConfig returns the speech capture settings for an output path.
func (c *AudioConfig) CaptureConfig(path string) media.CaptureConfig {
	cfg := media.SpeechConfig(path)
	cfg.SampleRate = c.SampleRate
	cfg.BitRate = c.BitRate
	return cfg
}

// ImportConfig holds the import inbox settings.
type ImportConfig struct {
	// Dir is watched for audio files to import. Empty disables the watcher.
	Dir string `yaml:"dir"`
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// EventsConfig holds SSE settings.
type EventsConfig struct {
	// Throttle is the minimum gap between amplitude or progress events.
	Throttle time.Duration `yaml:"throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Throttle, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// defaultInput returns the ffmpeg capture input for the running OS.
func defaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	format, device := defaultInput()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Audio: AudioConfig{
			Dir:               "./data/audio",
			SampleRate:        media.DefaultSampleRate,
			BitRate:           media.DefaultBitRate,
			InputFormat:       format,
			InputDevice:       device,
			AmplitudeInterval: 150 * time.Millisecond,
			ProgressInterval:  500 * time.Millisecond,
			FFmpegPath:        "ffmpeg",
			FFprobePath:       "ffprobe",
		},
		SQLite: SQLiteConfig{
			Path: "./data/ansuz.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Events: EventsConfig{
			Throttle: 250 * time.Millisecond,
		},
	}
}
