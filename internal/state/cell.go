// Package state provides a broadcast value cell with replay-latest semantics.
package state

import (
	"context"
	"sync"
)

// Cell holds a single value written by one owner and observed by many
// readers. New subscribers receive the current value immediately. A reader
// that falls behind only ever sees the newest value: each subscriber channel
// has a buffer of one and a pending stale value is replaced on write.
type Cell[T any] struct {
	mu     sync.Mutex
	value  T
	subs   map[chan T]struct{}
	closed bool
	done   chan struct{}
}

// NewCell returns a cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		subs:  make(map[chan T]struct{}),
		done:  make(chan struct{}),
	}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.broadcast(v)
}

// Update applies fn to the current value atomically and publishes the result.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = fn(c.value)
	c.broadcast(c.value)
	return c.value
}

func (c *Cell[T]) broadcast(v T) {
	if c.closed {
		return
	}
	for ch := range c.subs {
		select {
		case ch <- v:
		default:
			// Drop the stale pending value; only this writer sends.
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

// Subscribe returns a channel that yields the current value followed by every
// later value. It is closed when ctx is done or the cell is closed.
func (c *Cell[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch
	}
	ch <- c.value
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			c.unsubscribe(ch)
		case <-c.done:
		}
	}()
	return ch
}

func (c *Cell[T]) unsubscribe(ch chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (c *Cell[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close closes every subscriber channel. Later writes still update the value
// but are not delivered. Close is idempotent.
func (c *Cell[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
}
