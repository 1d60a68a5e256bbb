package sse

import (
	"context"
	"fmt"

	"github.com/starford/ansuz/internal/player"
	"github.com/starford/ansuz/internal/recorder"
)

// Recorder is the observable side of the recording controller.
type Recorder interface {
	SubscribeState(ctx context.Context) <-chan recorder.State
	SubscribeAmplitude(ctx context.Context) <-chan int
}

// Player is the observable side of the playback controller.
type Player interface {
	Subscribe(ctx context.Context) <-chan player.PlaybackState
}

// Forward relays controller state into the broker until ctx is done.
// Recording state transitions are sent as they happen; amplitude and
// playback progress go through the sample throttle.
func (b *Broker) Forward(ctx context.Context, rec Recorder, pl Player) error {
	states := rec.SubscribeState(ctx)
	levels := rec.SubscribeAmplitude(ctx)
	playback := pl.Subscribe(ctx)

	for states != nil || levels != nil || playback != nil {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			b.Publish(Event{Type: TypeRecordingState, Data: recorder.Describe(s)})
		case v, ok := <-levels:
			if !ok {
				levels = nil
				continue
			}
			b.PublishSample(TypeAmplitude, "", map[string]int{"level": v})
		case p, ok := <-playback:
			if !ok {
				playback = nil
				continue
			}
			b.PublishSample(TypePlaybackState, playbackKey(p), p)
		}
	}
	return nil
}

// playbackKey changes whenever the state changes in more than position, so
// those updates bypass the throttle.
func playbackKey(p player.PlaybackState) string {
	id := int64(-1)
	if p.CurrentRecordID != nil {
		id = *p.CurrentRecordID
	}
	return fmt.Sprintf("%d/%t/%d", id, p.IsPlaying, p.TotalDuration)
}
