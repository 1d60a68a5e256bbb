package internal

import "io"

// Mode selects what Run serves.
type Mode string

// Run modes.
const (
	ModeServe Mode = "serve"
	ModeTUI   Mode = "tui"
	ModeMCP   Mode = "mcp"
	ModeList  Mode = "list"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	mode   Mode
	out    io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMode selects the run mode. The default is ModeServe.
func WithMode(m Mode) Option {
	return func(a *application) {
		a.mode = m
	}
}

// WithOutput sets where ModeList prints the timeline.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}
