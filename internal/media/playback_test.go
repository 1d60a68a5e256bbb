//go:build !noaudio

package media

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/testutil"
)

type fakePCM struct {
	playing atomic.Bool
	closed  atomic.Bool
}

func (p *fakePCM) Play()             { p.playing.Store(true) }
func (p *fakePCM) Pause()            { p.playing.Store(false) }
func (p *fakePCM) IsPlaying() bool   { return p.playing.Load() }
func (p *fakePCM) Close() error      { p.closed.Store(true); return nil }
func (p *fakePCM) BufferedSize() int { return 0 }

// drainedSession returns a session whose decoder reached EOF and whose
// device buffer is empty, but whose ffmpeg process has not exited yet.
func drainedSession(t *testing.T) (*otoSession, *decoder, *fakePCM) {
	t.Helper()
	pcm := &fakePCM{}
	counter := &countingReader{r: strings.NewReader("")}
	counter.n.Store(millisToBytes(500))
	counter.eof.Store(true)
	d := &decoder{
		cancel:  func() {},
		player:  pcm,
		counter: counter,
		exited:  make(chan error),
		stop:    make(chan struct{}),
	}
	s := &otoSession{
		engine:   &OtoPlayback{log: slog.Default()},
		src:      "clip.m4a",
		prepared: true,
		duration: 500,
		dec:      d,
	}
	return s, d, pcm
}

func TestMonitorWaitsForExitWithoutLock(t *testing.T) {
	s, d, pcm := drainedSession(t)
	var completed atomic.Int32
	s.SetOnCompletion(func() { completed.Add(1) })

	go s.monitor(d)

	// Let monitor see EOF and start waiting for the process.
	time.Sleep(3 * monitorTick)

	done := make(chan struct{})
	go func() {
		_ = s.IsPlaying()
		_ = s.CurrentPosition()
		_ = s.Duration()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(exitWait / 4):
		t.Fatal("session calls blocked while waiting for decoder exit")
	}

	testutil.Eventually(t, 3*exitWait, 20*time.Millisecond, func() bool {
		return completed.Load() == 1
	}, "completion not reported")
	if !pcm.closed.Load() {
		t.Error("player not closed after completion")
	}
	if got := s.CurrentPosition(); got != 500 {
		t.Errorf("position = %d, want 500", got)
	}
	if s.IsPlaying() {
		t.Error("IsPlaying after completion")
	}
}

func TestMonitorStopsOnTeardownDuringExitWait(t *testing.T) {
	s, d, _ := drainedSession(t)
	var completed atomic.Int32
	s.SetOnCompletion(func() { completed.Add(1) })

	go s.monitor(d)
	time.Sleep(3 * monitorTick)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	time.Sleep(exitWait + 5*monitorTick)
	if n := completed.Load(); n != 0 {
		t.Errorf("completion fired %d times after Stop", n)
	}
}

func TestMonitorReportsDecodeFailure(t *testing.T) {
	s, d, _ := drainedSession(t)
	d.counter.n.Store(0)
	d.exited = make(chan error, 1)
	d.exited <- errors.New("exit status 1")

	errs := make(chan error, 1)
	s.SetOnError(func(err error) { errs <- err })
	s.SetOnCompletion(func() { t.Error("completion reported for a clip that never decoded") })

	go s.monitor(d)
	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "clip.m4a") {
			t.Errorf("error = %v, want source in message", err)
		}
	case <-time.After(exitWait):
		t.Fatal("decode failure not reported")
	}
}
