// Package mediatest provides in-memory media engines for tests.
package mediatest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/starford/ansuz/internal/media"
)

// ErrInjected is the default failure returned by injected faults.
var ErrInjected = errors.New("mediatest: injected failure")

// Capture stages that can be made to fail.
const (
	StageOpen      = "open"
	StageConfigure = "configure"
	StagePrepare   = "prepare"
	StageStart     = "start"
	StageStop      = "stop"
)

// CaptureEngine hands out fake capture sessions. Start creates the output
// file, mimicking an encoder that opens its target on start.
type CaptureEngine struct {
	mu       sync.Mutex
	sessions []*CaptureSession
	failAt   string
	levels   []int
}

// FailAt makes the next sessions fail at the given stage ("" disables).
func (e *CaptureEngine) FailAt(stage string) {
	e.mu.Lock()
	e.failAt = stage
	e.mu.Unlock()
}

// SetLevels sets the amplitude sequence returned by MaxAmplitude.
func (e *CaptureEngine) SetLevels(levels ...int) {
	e.mu.Lock()
	e.levels = append([]int(nil), levels...)
	e.mu.Unlock()
}

func (e *CaptureEngine) NewCaptureSession() (media.CaptureSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAt == StageOpen {
		return nil, ErrInjected
	}
	s := &CaptureSession{failAt: e.failAt, levels: append([]int(nil), e.levels...)}
	e.sessions = append(e.sessions, s)
	return s, nil
}

// Sessions returns every session opened so far.
func (e *CaptureEngine) Sessions() []*CaptureSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*CaptureSession(nil), e.sessions...)
}

// Last returns the most recent session or nil.
func (e *CaptureEngine) Last() *CaptureSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

// CaptureSession records the calls made on it.
type CaptureSession struct {
	mu       sync.Mutex
	failAt   string
	cfg      media.CaptureConfig
	calls    []string
	levels   []int
	next     int
	started  bool
	released bool
}

func (s *CaptureSession) step(name string) error {
	s.calls = append(s.calls, name)
	if s.released {
		return media.ErrReleased
	}
	if s.failAt == name {
		return fmt.Errorf("%s: %w", name, ErrInjected)
	}
	return nil
}

func (s *CaptureSession) Configure(cfg media.CaptureConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step(StageConfigure); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

func (s *CaptureSession) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step(StagePrepare)
}

func (s *CaptureSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step(StageStart); err != nil {
		return err
	}
	if err := os.WriteFile(s.cfg.OutputPath, []byte("fake-aac"), 0o644); err != nil {
		return err
	}
	s.started = true
	return nil
}

func (s *CaptureSession) MaxAmplitude() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.levels) == 0 {
		return 0
	}
	v := s.levels[s.next%len(s.levels)]
	s.next++
	return v
}

func (s *CaptureSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step(StageStop); err != nil {
		return err
	}
	if !s.started {
		return fmt.Errorf("stop: %w", media.ErrInvalidState)
	}
	s.started = false
	return nil
}

func (s *CaptureSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "release")
	s.released = true
	return nil
}

// Config returns the configuration passed to Configure.
func (s *CaptureSession) Config() media.CaptureConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Calls returns the method names invoked, in order.
func (s *CaptureSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Released reports whether Release was called.
func (s *CaptureSession) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Extractor returns canned durations keyed by source.
type Extractor struct {
	mu        sync.Mutex
	durations map[string]int64
	err       error
}

// NewExtractor returns an extractor with no known sources.
func NewExtractor() *Extractor {
	return &Extractor{durations: make(map[string]int64)}
}

// Set registers the duration of src.
func (x *Extractor) Set(src string, ms int64) {
	x.mu.Lock()
	x.durations[src] = ms
	x.mu.Unlock()
}

// Fail makes every lookup return err (nil clears it).
func (x *Extractor) Fail(err error) {
	x.mu.Lock()
	x.err = err
	x.mu.Unlock()
}

func (x *Extractor) Duration(_ context.Context, src string) (int64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return 0, x.err
	}
	d, ok := x.durations[src]
	if !ok {
		return 0, fmt.Errorf("mediatest: unknown source %q", src)
	}
	return d, nil
}
