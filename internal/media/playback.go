//go:build !noaudio

package media

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	prepareTimeout = 30 * time.Second
	monitorTick    = 50 * time.Millisecond
	exitWait       = time.Second
)

// OtoPlayback plays clips by decoding them with ffmpeg into an oto player.
// All sessions share one audio device context.
type OtoPlayback struct {
	bin    string
	prober MetadataExtractor
	log    *slog.Logger

	once    sync.Once
	ctx     *oto.Context
	initErr error
}

// NewOtoPlayback returns a playback engine. The prober supplies clip
// durations during preparation.
func NewOtoPlayback(bin string, prober MetadataExtractor, log *slog.Logger) *OtoPlayback {
	if bin == "" {
		bin = "ffmpeg"
	}
	if log == nil {
		log = slog.Default()
	}
	return &OtoPlayback{bin: bin, prober: prober, log: log}
}

func (e *OtoPlayback) device() (*oto.Context, error) {
	e.once.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   outputSampleRate,
			ChannelCount: outputChannels,
			Format:       oto.FormatSignedInt16LE,
		}
		c, ready, err := oto.NewContext(op)
		if err != nil {
			e.initErr = fmt.Errorf("media: create oto context: %w", err)
			return
		}
		<-ready
		e.ctx = c
	})
	return e.ctx, e.initErr
}

func (e *OtoPlayback) NewPlaybackSession() (PlaybackSession, error) {
	return &otoSession{engine: e}, nil
}

type otoSession struct {
	engine *OtoPlayback

	mu           sync.Mutex
	src          string
	prepared     bool
	released     bool
	duration     int
	base         int
	paused       bool
	completed    bool
	dec          *decoder
	onCompletion func()
	onError      func(error)
}

// pcmPlayer is the part of *oto.Player a session drives.
type pcmPlayer interface {
	Play()
	Pause()
	IsPlaying() bool
	Close() error
	BufferedSize() int
}

type decoder struct {
	cancel  context.CancelFunc
	player  pcmPlayer
	counter *countingReader
	exited  chan error
	stop    chan struct{}
}

func (s *otoSession) SetSource(src string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if s.src != "" {
		return fmt.Errorf("set source: %w", ErrInvalidState)
	}
	s.src = src
	return nil
}

func (s *otoSession) SetOnCompletion(fn func()) {
	s.mu.Lock()
	s.onCompletion = fn
	s.mu.Unlock()
}

func (s *otoSession) SetOnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

func (s *otoSession) PrepareAsync(onPrepared func()) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), prepareTimeout)
		defer cancel()

		if src == "" {
			s.fail(fmt.Errorf("prepare: %w", ErrInvalidState))
			return
		}
		d, err := s.engine.prober.Duration(ctx, src)
		if err != nil {
			s.fail(err)
			return
		}
		if _, err := s.engine.device(); err != nil {
			s.fail(err)
			return
		}

		s.mu.Lock()
		if s.released {
			s.mu.Unlock()
			return
		}
		s.duration = int(d)
		s.prepared = true
		s.mu.Unlock()

		if onPrepared != nil {
			onPrepared()
		}
	}()
}

func (s *otoSession) fail(err error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	cb := s.onError
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (s *otoSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if !s.prepared {
		return fmt.Errorf("start: %w", ErrInvalidState)
	}
	if s.dec != nil {
		if s.paused {
			s.dec.player.Play()
			s.paused = false
		}
		return nil
	}
	if s.completed {
		s.base = 0
		s.completed = false
	}
	return s.startDecoderLocked(s.base)
}

func (s *otoSession) startDecoderLocked(at int) error {
	device, err := s.engine.device()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.engine.bin,
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-ss", strconv.FormatFloat(float64(at)/1000, 'f', 3, 64),
		"-i", s.src,
		"-f", "s16le",
		"-ac", strconv.Itoa(outputChannels),
		"-ar", strconv.Itoa(outputSampleRate),
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("media: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("media: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("media: start ffmpeg: %w", err)
	}

	log := s.engine.log.With(slog.String("src", s.src))
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Warn("ffmpeg", slog.String("line", scanner.Text()))
		}
	}()

	d := &decoder{
		cancel:  cancel,
		counter: &countingReader{r: bufio.NewReaderSize(stdout, 65536)},
		exited:  make(chan error, 1),
		stop:    make(chan struct{}),
	}
	go func() { d.exited <- cmd.Wait() }()

	d.player = device.NewPlayer(d.counter)
	d.player.Play()

	s.dec = d
	s.base = at
	s.paused = false
	go s.monitor(d)
	return nil
}

// monitor reports completion once the decoder hit EOF and the device
// drained its buffer. The decoder exit status is collected without holding
// the session lock.
func (s *otoSession) monitor(d *decoder) {
	t := time.NewTicker(monitorTick)
	defer t.Stop()

	var waitErr error
	exited := false
	for {
		select {
		case <-d.stop:
			return
		case <-t.C:
		}
		if !d.counter.eof.Load() {
			continue
		}

		s.mu.Lock()
		current, busy := s.dec == d, s.paused || d.player.IsPlaying()
		s.mu.Unlock()
		if !current {
			return
		}
		if busy {
			continue
		}

		if !exited {
			select {
			case waitErr = <-d.exited:
			case <-d.stop:
				return
			case <-time.After(exitWait):
			}
			exited = true
		}

		s.mu.Lock()
		if s.dec != d {
			s.mu.Unlock()
			return
		}
		if s.paused || d.player.IsPlaying() {
			s.mu.Unlock()
			continue
		}
		played := d.counter.n.Load()
		s.teardownLocked()
		s.completed = true
		s.base = s.duration
		var cb func()
		if waitErr != nil && played == 0 {
			if onErr := s.onError; onErr != nil {
				err := fmt.Errorf("media: decode %s: %w", s.src, waitErr)
				cb = func() { onErr(err) }
			}
		} else {
			cb = s.onCompletion
		}
		s.mu.Unlock()

		if cb != nil {
			cb()
		}
		return
	}
}

func (s *otoSession) teardownLocked() {
	d := s.dec
	if d == nil {
		return
	}
	s.dec = nil
	close(d.stop)
	d.player.Pause()
	_ = d.player.Close()
	d.cancel()
}

func (s *otoSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if s.dec == nil || s.paused {
		return nil
	}
	s.dec.player.Pause()
	s.paused = true
	return nil
}

func (s *otoSession) SeekTo(ms int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if !s.prepared {
		return fmt.Errorf("seek: %w", ErrInvalidState)
	}
	if ms < 0 {
		ms = 0
	}
	if s.duration > 0 && ms > s.duration {
		ms = s.duration
	}
	s.completed = false
	if s.dec == nil {
		s.base = ms
		return nil
	}
	wasPaused := s.paused
	s.teardownLocked()
	s.base = ms
	if wasPaused {
		return nil
	}
	return s.startDecoderLocked(ms)
}

func (s *otoSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	s.teardownLocked()
	s.prepared = false
	s.base = 0
	return nil
}

func (s *otoSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.teardownLocked()
	s.released = true
	s.onCompletion = nil
	s.onError = nil
	return nil
}

func (s *otoSession) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dec != nil && !s.paused && !s.completed
}

func (s *otoSession) CurrentPosition() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dec == nil {
		return s.base
	}
	played := s.dec.counter.n.Load() - int64(s.dec.player.BufferedSize())
	if played < 0 {
		played = 0
	}
	pos := s.base + bytesToMillis(played)
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	return pos
}

func (s *otoSession) Duration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// countingReader counts frame-aligned bytes handed to the device.
type countingReader struct {
	r       io.Reader
	n       atomic.Int64
	eof     atomic.Bool
	residue []byte
}

func (c *countingReader) Read(p []byte) (int, error) {
	off := 0
	if len(c.residue) > 0 {
		off = copy(p, c.residue)
		c.residue = c.residue[off:]
	}
	n, err := c.r.Read(p[off:])
	n += off
	aligned := n - n%frameSize
	if aligned < n && err == nil {
		c.residue = append(c.residue, p[aligned:n]...)
		n = aligned
	}
	c.n.Add(int64(n))
	if err == io.EOF {
		c.eof.Store(true)
	}
	return n, err
}
