package mediatest

import (
	"errors"
	"sync"

	"github.com/starford/ansuz/internal/media"
)

// PlaybackEngine hands out fake playback sessions. Preparation runs on a
// separate goroutine like a real engine and fails for sources registered
// with FailSource.
type PlaybackEngine struct {
	mu        sync.Mutex
	sessions  []*PlaybackSession
	durations map[string]int
	failing   map[string]error
	openErr   error
}

// NewPlaybackEngine returns an engine with no known sources.
func NewPlaybackEngine() *PlaybackEngine {
	return &PlaybackEngine{durations: make(map[string]int), failing: make(map[string]error)}
}

// SetDuration registers the duration reported after preparing src.
func (e *PlaybackEngine) SetDuration(src string, ms int) {
	e.mu.Lock()
	e.durations[src] = ms
	e.mu.Unlock()
}

// FailSource makes preparing src report err.
func (e *PlaybackEngine) FailSource(src string, err error) {
	e.mu.Lock()
	e.failing[src] = err
	e.mu.Unlock()
}

// FailOpen makes NewPlaybackSession return err (nil clears it).
func (e *PlaybackEngine) FailOpen(err error) {
	e.mu.Lock()
	e.openErr = err
	e.mu.Unlock()
}

func (e *PlaybackEngine) NewPlaybackSession() (media.PlaybackSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.openErr != nil {
		return nil, e.openErr
	}
	s := &PlaybackSession{engine: e}
	e.sessions = append(e.sessions, s)
	return s, nil
}

// Sessions returns every session opened so far.
func (e *PlaybackEngine) Sessions() []*PlaybackSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*PlaybackSession(nil), e.sessions...)
}

// Last returns the most recent session or nil.
func (e *PlaybackEngine) Last() *PlaybackSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

// PlaybackSession is a scripted playback handle. Position only moves
// through SeekTo or SetPosition.
type PlaybackSession struct {
	engine *PlaybackEngine

	mu           sync.Mutex
	src          string
	prepared     bool
	playing      bool
	released     bool
	position     int
	duration     int
	onCompletion func()
	onError      func(error)
}

func (s *PlaybackSession) SetSource(src string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return media.ErrReleased
	}
	s.src = src
	return nil
}

func (s *PlaybackSession) PrepareAsync(onPrepared func()) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()

	s.engine.mu.Lock()
	failErr, fails := s.engine.failing[src]
	d := s.engine.durations[src]
	s.engine.mu.Unlock()

	go func() {
		s.mu.Lock()
		if s.released {
			s.mu.Unlock()
			return
		}
		if fails {
			cb := s.onError
			s.mu.Unlock()
			if cb != nil {
				cb(failErr)
			}
			return
		}
		s.prepared = true
		s.duration = d
		s.mu.Unlock()
		if onPrepared != nil {
			onPrepared()
		}
	}()
}

func (s *PlaybackSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return media.ErrReleased
	}
	if !s.prepared {
		return media.ErrInvalidState
	}
	s.playing = true
	return nil
}

func (s *PlaybackSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return media.ErrReleased
	}
	s.playing = false
	return nil
}

func (s *PlaybackSession) SeekTo(ms int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return media.ErrReleased
	}
	if !s.prepared {
		return media.ErrInvalidState
	}
	s.position = ms
	return nil
}

func (s *PlaybackSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.prepared = false
	return nil
}

func (s *PlaybackSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.playing = false
	return nil
}

func (s *PlaybackSession) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *PlaybackSession) CurrentPosition() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *PlaybackSession) Duration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *PlaybackSession) SetOnCompletion(fn func()) {
	s.mu.Lock()
	s.onCompletion = fn
	s.mu.Unlock()
}

func (s *PlaybackSession) SetOnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Source returns the source passed to SetSource.
func (s *PlaybackSession) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

// Released reports whether Release was called.
func (s *PlaybackSession) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// SetPosition moves the playhead as if audio had played.
func (s *PlaybackSession) SetPosition(ms int) {
	s.mu.Lock()
	s.position = ms
	s.mu.Unlock()
}

// Complete simulates reaching the end of the clip.
func (s *PlaybackSession) Complete() {
	s.mu.Lock()
	s.playing = false
	s.position = s.duration
	cb := s.onCompletion
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Fail simulates a runtime playback error.
func (s *PlaybackSession) Fail(err error) {
	if err == nil {
		err = errors.New("mediatest: playback error")
	}
	s.mu.Lock()
	s.playing = false
	cb := s.onError
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
