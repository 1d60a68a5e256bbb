// Package player owns the single playback session and publishes its state.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/media"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/state"
)

// DefaultProgressInterval is the position publishing cadence.
const DefaultProgressInterval = 500 * time.Millisecond

// ErrorMessage is the notification shown when playback fails.
const ErrorMessage = "Error playing audio"

// PlaybackState is the observable snapshot. The zero value means nothing is
// loaded.
type PlaybackState struct {
	IsPlaying       bool   `json:"is_playing"`
	CurrentRecordID *int64 `json:"current_record_id"`
	CurrentPosition int    `json:"current_position"`
	TotalDuration   int    `json:"total_duration"`
}

// IsCurrent reports whether id is the loaded record.
func (s PlaybackState) IsCurrent(id int64) bool {
	return s.CurrentRecordID != nil && *s.CurrentRecordID == id
}

// Source turns a record locator into something the engine can open.
type Source interface {
	// Direct returns a streamable source for loc or fails.
	Direct(ctx context.Context, loc string) (string, error)
	// CopyToLocal copies loc into app storage and returns the new path.
	CopyToLocal(ctx context.Context, loc string) (string, error)
}

// Notifier shows user-visible messages. It must not call back into the
// Controller.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

// Controller drives one playback session at a time.
type Controller struct {
	engine   media.PlaybackEngine
	source   Source
	notify   Notifier
	log      *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	session  media.PlaybackSession
	gen      uint64
	progress context.CancelFunc

	state *state.Cell[PlaybackState]
}

// Option configures a Controller.
type Option func(*Controller)

// WithProgressInterval overrides the position publishing cadence.
func WithProgressInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithNotifier sets where playback errors are reported.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notify = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New creates a Controller.
func New(engine media.PlaybackEngine, source Source, opts ...Option) *Controller {
	c := &Controller{
		engine:   engine,
		source:   source,
		notify:   NotifierFunc(func(string) {}),
		log:      slog.Default(),
		interval: DefaultProgressInterval,
		state:    state.NewCell(PlaybackState{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnPlayPause toggles the loaded record or switches to rec. Source
// resolution, which may copy or download the clip, runs without holding the
// controller lock; a Release or another switch meanwhile abandons it.
func (c *Controller) OnPlayPause(ctx context.Context, rec models.AudioRecord) error {
	c.mu.Lock()
	if c.state.Get().IsCurrent(rec.ID) && c.session != nil {
		c.toggleLocked()
		c.mu.Unlock()
		return nil
	}
	c.stopLocked()
	gen := c.gen
	c.mu.Unlock()

	src, err := c.resolve(ctx, rec)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	if err != nil {
		c.failLocked(err)
		return fmt.Errorf("player: open source: %w", err)
	}
	return c.openLocked(gen, rec.ID, src)
}

func (c *Controller) toggleLocked() {
	if c.state.Get().IsPlaying {
		c.pauseLocked()
	} else {
		c.playLocked()
	}
}

// resolve returns a streamable source for rec, falling back to a copy in
// app storage.
func (c *Controller) resolve(ctx context.Context, rec models.AudioRecord) (string, error) {
	log := c.log.With(slog.Int64("record_id", rec.ID))
	src, err := c.source.Direct(ctx, rec.FilePath)
	if err == nil {
		return src, nil
	}
	log.Warn("direct access failed, copying to local storage", slog.String("error", err.Error()))
	src, err = c.source.CopyToLocal(ctx, rec.FilePath)
	if err != nil {
		return "", err
	}
	log.Debug("playing local copy", slog.String("path", src))
	return src, nil
}

// openLocked creates and prepares a session for src. Caller holds mu.
func (c *Controller) openLocked(gen uint64, id int64, src string) error {
	session, err := c.engine.NewPlaybackSession()
	if err != nil {
		c.failLocked(err)
		return fmt.Errorf("player: open session: %w", err)
	}
	session.SetOnError(func(err error) { c.onSessionError(gen, err) })
	session.SetOnCompletion(func() { c.onCompletion(gen) })
	if err := session.SetSource(src); err != nil {
		_ = session.Release()
		c.failLocked(err)
		return fmt.Errorf("player: set source: %w", err)
	}

	c.session = session
	session.PrepareAsync(func() { c.onPrepared(gen, id) })
	return nil
}

func (c *Controller) onPrepared(gen uint64, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.session == nil {
		return
	}
	c.state.Set(PlaybackState{
		IsPlaying:       true,
		CurrentRecordID: &id,
		TotalDuration:   c.session.Duration(),
	})
	if err := c.session.Start(); err != nil {
		c.failLocked(err)
		return
	}
	c.startProgressLocked()
}

func (c *Controller) onCompletion(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.log.Debug("playback completed")
	c.stopLocked()
}

func (c *Controller) onSessionError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.failLocked(err)
}

// failLocked reports err to the user and collapses to the zero state.
func (c *Controller) failLocked(err error) {
	c.log.Error("playback failed", slog.String("error", err.Error()))
	c.notify.Notify(ErrorMessage)
	c.stopLocked()
}

// stopLocked releases the session and resets to the zero state.
func (c *Controller) stopLocked() {
	c.gen++
	c.stopProgressLocked()
	if c.session != nil {
		if err := c.session.Stop(); err != nil {
			c.log.Debug("stop playback session", slog.String("error", err.Error()))
		}
		if err := c.session.Release(); err != nil {
			c.log.Warn("release playback session", slog.String("error", err.Error()))
		}
		c.session = nil
	}
	c.state.Set(PlaybackState{})
}

func (c *Controller) playLocked() {
	if c.session != nil {
		if err := c.session.Start(); err != nil {
			c.failLocked(err)
			return
		}
	}
	c.state.Update(func(s PlaybackState) PlaybackState {
		s.IsPlaying = true
		return s
	})
	c.startProgressLocked()
}

func (c *Controller) pauseLocked() {
	if c.session != nil {
		if err := c.session.Pause(); err != nil {
			c.log.Warn("pause playback session", slog.String("error", err.Error()))
		}
	}
	c.state.Update(func(s PlaybackState) PlaybackState {
		s.IsPlaying = false
		return s
	})
	c.stopProgressLocked()
}

// startProgressLocked publishes the position while the session reports
// playing. The loop ends by itself once playback stops.
func (c *Controller) startProgressLocked() {
	c.stopProgressLocked()
	if c.session == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.progress = cancel

	session := c.session
	go func() {
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for session.IsPlaying() {
			pos := session.CurrentPosition()
			c.state.Update(func(s PlaybackState) PlaybackState {
				if ctx.Err() != nil {
					return s
				}
				s.CurrentPosition = pos
				return s
			})
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func (c *Controller) stopProgressLocked() {
	if c.progress != nil {
		c.progress()
		c.progress = nil
	}
}

// Pause pauses the session and stops progress updates.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseLocked()
}

// SeekTo forwards ms to the session if any and always publishes it as the
// current position.
func (c *Controller) SeekTo(ms int) {
	if ms < 0 {
		ms = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		if err := c.session.SeekTo(ms); err != nil {
			c.log.Warn("seek", slog.Int("position", ms), slog.String("error", err.Error()))
		}
	}
	c.state.Update(func(s PlaybackState) PlaybackState {
		s.CurrentPosition = ms
		return s
	})
}

// Release tears down any session and resets the state. Safe to call
// repeatedly.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// State returns the current playback snapshot.
func (c *Controller) State() PlaybackState {
	return c.state.Get()
}

// Subscribe streams playback snapshots until ctx is done.
func (c *Controller) Subscribe(ctx context.Context) <-chan PlaybackState {
	return c.state.Subscribe(ctx)
}

// Close releases the session and closes subscriptions.
func (c *Controller) Close() {
	c.Release()
	c.state.Close()
}
