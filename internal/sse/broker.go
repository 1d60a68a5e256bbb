// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// Event types.
const (
	TypeRecordCreated  = "record.created"
	TypeRecordUpdated  = "record.updated"
	TypeRecordDeleted  = "record.deleted"
	TypeRecordingState = "recording.state"
	TypeAmplitude      = "recording.amplitude"
	TypePlaybackState  = "playback.state"
	TypeNotice         = "notice"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type recordEventReq struct {
	kind string
	rec  models.AudioRecord
}

// sampleReq is a high-frequency update. Samples of one type sharing a key
// are rate limited; a key change always goes through.
type sampleReq struct {
	typ  string
	key  string
	data any
}

type lastSample struct {
	key string
	at  time.Time
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + throttle timestamps). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	sampleMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	recordEventCh chan recordEventReq
	sampleCh      chan sampleReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given sample throttle interval.
func NewBroker(sampleThrottle time.Duration) *Broker {
	if sampleThrottle <= 0 {
		sampleThrottle = 250 * time.Millisecond
	}

	b := &Broker{
		sampleMin:     sampleThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		recordEventCh: make(chan recordEventReq, 256),
		sampleCh:      make(chan sampleReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	samples := make(map[string]lastSample)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.recordEventCh:
			switch req.kind {
			case "created":
				broadcast(Event{Type: TypeRecordCreated, Data: req.rec})
			case "updated":
				broadcast(Event{Type: TypeRecordUpdated, Data: req.rec})
			case "deleted":
				broadcast(Event{Type: TypeRecordDeleted, Data: map[string]int64{"id": req.rec.ID}})
			}

		case req := <-b.sampleCh:
			now := time.Now()
			last, seen := samples[req.typ]
			if seen && last.key == req.key && now.Sub(last.at) < b.sampleMin {
				continue
			}
			samples[req.typ] = lastSample{key: req.key, at: now}
			broadcast(Event{Type: req.typ, Data: req.data})

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Notify broadcasts a user-visible message. It lets the broker serve as a
// player.Notifier.
func (b *Broker) Notify(msg string) {
	b.Publish(Event{Type: TypeNotice, Data: map[string]string{"message": msg}})
}

// PublishRecordEvent publishes a record change. kind is created, updated or
// deleted.
func (b *Broker) PublishRecordEvent(kind string, rec models.AudioRecord) {
	if b.closed.Load() {
		return
	}
	select {
	case b.recordEventCh <- recordEventReq{kind: kind, rec: rec}:
	case <-b.stopped:
	}
}

// PublishSample publishes a high-frequency update. Consecutive samples of
// typ with the same key are throttled; a new key is sent immediately.
func (b *Broker) PublishSample(typ, key string, data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.sampleCh <- sampleReq{typ: typ, key: key, data: data}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
