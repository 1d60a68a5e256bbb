package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Level meter stream: mono s16le at a low rate, only used for peaks.
const meterSampleRate = 8000

// stopTimeout bounds how long Stop waits for ffmpeg to finalize the file.
const stopTimeout = 5 * time.Second

// FFmpegCapture opens microphone capture sessions backed by an ffmpeg
// subprocess. The process writes the encoded file and, on a second output,
// a raw PCM stream used for the level meter.
type FFmpegCapture struct {
	bin    string
	format string
	device string
	log    *slog.Logger
}

// NewFFmpegCapture returns a capture engine reading from the given ffmpeg
// input format and device (for example "pulse"/"default" or
// "avfoundation"/":0").
func NewFFmpegCapture(bin, format, device string, log *slog.Logger) *FFmpegCapture {
	if bin == "" {
		bin = "ffmpeg"
	}
	if log == nil {
		log = slog.Default()
	}
	return &FFmpegCapture{bin: bin, format: format, device: device, log: log}
}

func (e *FFmpegCapture) NewCaptureSession() (CaptureSession, error) {
	return &ffmpegSession{engine: e}, nil
}

type captureStage int

const (
	stageNew captureStage = iota
	stageConfigured
	stagePrepared
	stageStarted
	stageStopped
	stageReleased
)

type ffmpegSession struct {
	engine *FFmpegCapture

	mu     sync.Mutex
	stage  captureStage
	cfg    CaptureConfig
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr io.ReadCloser
	exited chan error

	peak atomic.Int32
}

func (s *ffmpegSession) Configure(cfg CaptureConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == stageReleased {
		return ErrReleased
	}
	if s.stage != stageNew {
		return fmt.Errorf("configure: %w", ErrInvalidState)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	s.stage = stageConfigured
	return nil
}

func (s *ffmpegSession) args() []string {
	channels := "2"
	if s.cfg.Source == SourceSpeech {
		channels = "1"
	}
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nostdin",
		"-f", s.engine.format,
		"-i", s.engine.device,
		"-map", "0:a",
		"-ac", channels,
		"-ar", strconv.Itoa(s.cfg.SampleRate),
		"-c:a", s.cfg.Encoder,
		"-b:a", strconv.Itoa(s.cfg.BitRate),
		"-f", s.cfg.Container,
		"-y", s.cfg.OutputPath,
		"-map", "0:a",
		"-ac", "1",
		"-ar", strconv.Itoa(meterSampleRate),
		"-f", "s16le",
		"pipe:1",
	}
}

func (s *ffmpegSession) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == stageReleased {
		return ErrReleased
	}
	if s.stage != stageConfigured {
		return fmt.Errorf("prepare: %w", ErrInvalidState)
	}
	if _, err := exec.LookPath(s.engine.bin); err != nil {
		return fmt.Errorf("media: ffmpeg not available: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.engine.bin, s.args()...)
	cmd.Cancel = func() error { return cmd.Process.Kill() }

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

	s.cmd = cmd
	s.cancel = cancel
	s.stdout = stdout
	s.stderr = stderr
	s.stage = stagePrepared
	return nil
}

func (s *ffmpegSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == stageReleased {
		return ErrReleased
	}
	if s.stage != stagePrepared {
		return fmt.Errorf("start: %w", ErrInvalidState)
	}
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("media: start ffmpeg: %w", err)
	}
	s.stage = stageStarted
	s.exited = make(chan error, 1)

	log := s.engine.log.With(slog.String("output", s.cfg.OutputPath))
	go func() {
		scanner := bufio.NewScanner(s.stderr)
		for scanner.Scan() {
			log.Warn("ffmpeg", slog.String("line", scanner.Text()))
		}
	}()
	go s.meter(s.stdout)

	cmd := s.cmd
	exited := s.exited
	go func() { exited <- cmd.Wait() }()

	log.Info("capture started")
	return nil
}

// meter consumes the PCM output and keeps the running peak.
func (s *ffmpegSession) meter(r io.Reader) {
	br := bufio.NewReaderSize(r, 4096)
	buf := make([]byte, 1024)
	for {
		n, err := io.ReadFull(br, buf)
		if n > 0 {
			p := int32(peakLevel(buf[:n&^1]))
			for {
				cur := s.peak.Load()
				if p <= cur || s.peak.CompareAndSwap(cur, p) {
					break
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *ffmpegSession) MaxAmplitude() int {
	return int(s.peak.Swap(0))
}

// Stop asks ffmpeg to finish the file and waits for it to exit.
func (s *ffmpegSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == stageReleased {
		return ErrReleased
	}
	if s.stage != stageStarted {
		return fmt.Errorf("stop: %w", ErrInvalidState)
	}
	s.stage = stageStopped

	if err := s.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.cancel()
		<-s.exited
		return fmt.Errorf("media: interrupt ffmpeg: %w", err)
	}

	select {
	case err := <-s.exited:
		var exitErr *exec.ExitError
		// ffmpeg exits with 255 after an interrupt even when the file is complete.
		if err != nil && !(errors.As(err, &exitErr) && exitErr.ExitCode() == 255) {
			return fmt.Errorf("media: ffmpeg exited: %w", err)
		}
	case <-time.After(stopTimeout):
		s.cancel()
		<-s.exited
		return fmt.Errorf("media: ffmpeg did not finish within %s", stopTimeout)
	}

	if _, err := os.Stat(s.cfg.OutputPath); err != nil {
		return fmt.Errorf("media: capture output: %w", err)
	}
	return nil
}

func (s *ffmpegSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == stageReleased {
		return nil
	}
	wasRunning := s.stage == stageStarted
	s.stage = stageReleased
	if s.cancel != nil {
		s.cancel()
	}
	if wasRunning {
		<-s.exited
	} else if s.stdout != nil && s.cmd.Process == nil {
		s.stdout.Close()
		s.stderr.Close()
	}
	return nil
}

// peakLevel returns the largest absolute sample value of little-endian
// 16-bit PCM, clamped to 32767.
func peakLevel(pcm []byte) int {
	peak := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak > 32767 {
		peak = 32767
	}
	return peak
}
