// Package recorder owns the single microphone capture session and its
// Idle → Recording → Finished state machine.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/media"
	"github.com/starford/ansuz/internal/state"
	"github.com/starford/ansuz/internal/storage"
)

// DefaultSampleInterval is the amplitude sampling cadence.
const DefaultSampleInterval = 150 * time.Millisecond

// Controller drives one capture session at a time.
type Controller struct {
	engine   media.CaptureEngine
	files    storage.Provider
	log      *slog.Logger
	interval time.Duration
	capture  func(path string) media.CaptureConfig

	mu       sync.Mutex
	session  media.CaptureSession
	path     string
	cancel   context.CancelFunc
	sampling chan struct{}

	state     *state.Cell[State]
	amplitude *state.Cell[int]
}

// Option configures a Controller.
type Option func(*Controller)

// WithSampleInterval overrides the amplitude sampling cadence.
func WithSampleInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithCaptureConfig overrides how the capture configuration is built for an
// output path. Sample rate and bit rate come from config this way.
func WithCaptureConfig(fn func(path string) media.CaptureConfig) Option {
	return func(c *Controller) { c.capture = fn }
}

// New creates a Controller writing recordings into files.
func New(engine media.CaptureEngine, files storage.Provider, opts ...Option) *Controller {
	c := &Controller{
		engine:    engine,
		files:     files,
		log:       slog.Default(),
		interval:  DefaultSampleInterval,
		capture:   media.SpeechConfig,
		state:     state.NewCell[State](Idle{}),
		amplitude: state.NewCell(0),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start allocates a new output file and begins capturing into it. On any
// setup failure the file is removed, the session torn down and the state
// returns to Idle. A pending Finished recording that was never saved is
// discarded first.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return apperr.ErrAlreadyRecording
	}
	if c.path != "" {
		c.log.Info("discarding unsaved recording", slog.String("path", c.path))
		c.cleanupLocked()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := c.files.Allocate(storage.DefaultExt)
	if err != nil {
		return fmt.Errorf("recorder: allocate: %w", err)
	}
	c.path = path

	session, err := c.engine.NewCaptureSession()
	if err != nil {
		c.cleanupLocked()
		return fmt.Errorf("recorder: open session: %w", err)
	}
	c.session = session

	if err := c.startSession(session, path); err != nil {
		c.cleanupLocked()
		return err
	}

	c.state.Set(Recording{})
	c.startSampling()
	c.log.Info("recording started", slog.String("path", path))
	return nil
}

func (c *Controller) startSession(s media.CaptureSession, path string) error {
	if err := s.Configure(c.capture(path)); err != nil {
		return fmt.Errorf("recorder: configure: %w", err)
	}
	if err := s.Prepare(); err != nil {
		return fmt.Errorf("recorder: prepare: %w", err)
	}
	if err := s.Start(); err != nil {
		return fmt.Errorf("recorder: start: %w", err)
	}
	return nil
}

// startSampling polls the session level until cancelled. Caller holds mu.
func (c *Controller) startSampling() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.sampling = done

	session := c.session
	go func() {
		defer close(done)
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for {
			c.amplitude.Set(session.MaxAmplitude())
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

// stopSampling cancels the sampling goroutine, waits for it and zeroes the
// level. Caller holds mu.
func (c *Controller) stopSampling() {
	if c.cancel != nil {
		c.cancel()
		<-c.sampling
		c.cancel = nil
		c.sampling = nil
	}
	c.amplitude.Set(0)
}

// Stop finalises the capture and moves to Finished with the recorded path.
// An engine stop error is returned after the session has been released.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return apperr.ErrNotRecording
	}
	c.stopSampling()

	stopErr := c.session.Stop()
	if err := c.session.Release(); err != nil {
		c.log.Warn("release capture session", slog.String("error", err.Error()))
	}
	c.session = nil

	if c.path != "" {
		c.state.Set(Finished{FilePath: c.path})
		c.log.Info("recording finished", slog.String("path", c.path))
	}
	if stopErr != nil {
		return fmt.Errorf("recorder: stop: %w", stopErr)
	}
	return nil
}

// CleanupPendingRecording deletes the pending file, tears the session down
// and returns to Idle. Failures are logged and swallowed.
func (c *Controller) CleanupPendingRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
}

func (c *Controller) cleanupLocked() {
	if c.path != "" {
		if err := c.files.Delete(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("delete pending recording",
				slog.String("path", c.path),
				slog.String("error", err.Error()),
			)
		}
	}
	c.resetSession()
}

// resetSession force-stops and releases the session. Caller holds mu.
func (c *Controller) resetSession() {
	c.stopSampling()
	if c.session != nil {
		if err := c.session.Stop(); err != nil {
			c.log.Debug("stop capture session", slog.String("error", err.Error()))
		}
		if err := c.session.Release(); err != nil {
			c.log.Warn("release capture session", slog.String("error", err.Error()))
		}
		c.session = nil
	}
	c.path = ""
	c.state.Set(Idle{})
}

// ResetRecordingState forgets the finished file without touching it. Used
// once the file belongs to a saved record.
func (c *Controller) ResetRecordingState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return
	}
	c.path = ""
	c.state.Set(Idle{})
}

// PendingPath returns the finished recording awaiting save.
func (c *Controller) PendingPath() (string, error) {
	if f, ok := c.state.Get().(Finished); ok {
		return f.FilePath, nil
	}
	return "", apperr.ErrNoPendingRecording
}

// Claim takes ownership of the finished file and returns to Idle in one
// step. Once claimed, neither Start nor CleanupPendingRecording will delete
// the file, and a second Claim fails with ErrNoPendingRecording.
func (c *Controller) Claim() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.state.Get().(Finished)
	if !ok || c.session != nil {
		return "", apperr.ErrNoPendingRecording
	}
	c.path = ""
	c.state.Set(Idle{})
	return f.FilePath, nil
}

// Restore returns a claimed file to Finished after its save failed. If a
// new recording was started or finished in the meantime the file is
// deleted instead.
func (c *Controller) Restore(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil || c.path != "" {
		if err := c.files.Delete(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("delete unsaved recording",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	c.path = path
	c.state.Set(Finished{FilePath: path})
}

// State returns the current recording state.
func (c *Controller) State() State {
	return c.state.Get()
}

// Amplitude returns the latest input level, 0 when not recording.
func (c *Controller) Amplitude() int {
	return c.amplitude.Get()
}

// SubscribeState streams state transitions until ctx is done.
func (c *Controller) SubscribeState(ctx context.Context) <-chan State {
	return c.state.Subscribe(ctx)
}

// SubscribeAmplitude streams input levels until ctx is done.
func (c *Controller) SubscribeAmplitude(ctx context.Context) <-chan int {
	return c.amplitude.Subscribe(ctx)
}

// Close discards any pending recording and closes the subscriptions.
func (c *Controller) Close() {
	c.CleanupPendingRecording()
	c.state.Close()
	c.amplitude.Close()
}

// Duration extracts the clip length in milliseconds. Any failure yields 0
// and is logged to log at debug level.
func Duration(ctx context.Context, x media.MetadataExtractor, loc string, log *slog.Logger) int64 {
	d, err := x.Duration(ctx, loc)
	if err != nil || d < 0 {
		if err != nil {
			log.Debug("duration unavailable", slog.String("locator", loc), slog.String("error", err.Error()))
		}
		return 0
	}
	return d
}
