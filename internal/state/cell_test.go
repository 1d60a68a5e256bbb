package state

import (
	"context"
	"testing"
	"time"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for value")
	}
	var zero T
	return zero
}

func TestSubscribeReplaysLatest(t *testing.T) {
	c := NewCell(1)
	defer c.Close()
	c.Set(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.Subscribe(ctx)
	if got := receive(t, ch); got != 2 {
		t.Fatalf("first value = %d, want 2", got)
	}

	c.Set(3)
	if got := receive(t, ch); got != 3 {
		t.Fatalf("next value = %d, want 3", got)
	}
}

func TestSlowReaderSeesNewestOnly(t *testing.T) {
	c := NewCell(0)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := c.Subscribe(ctx)

	for i := 1; i <= 10; i++ {
		c.Set(i)
	}
	if got := receive(t, ch); got != 10 {
		t.Fatalf("value = %d, want 10", got)
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestMultipleSubscribers(t *testing.T) {
	c := NewCell("idle")
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := c.Subscribe(ctx)
	b := c.Subscribe(ctx)
	receive(t, a)
	receive(t, b)

	c.Set("recording")
	if got := receive(t, a); got != "recording" {
		t.Errorf("a = %q", got)
	}
	if got := receive(t, b); got != "recording" {
		t.Errorf("b = %q", got)
	}
}

func TestUpdate(t *testing.T) {
	c := NewCell(5)
	defer c.Close()
	got := c.Update(func(v int) int { return v * 2 })
	if got != 10 || c.Get() != 10 {
		t.Fatalf("Update = %d, Get = %d, want 10", got, c.Get())
	}
}

func TestCancelClosesSubscription(t *testing.T) {
	c := NewCell(0)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Subscribe(ctx)
	receive(t, ch)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close")
	}
	if n := c.Subscribers(); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewCell(0)
	ch := c.Subscribe(context.Background())
	receive(t, ch)

	c.Close()
	c.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	c.Set(1)
	if c.Get() != 1 {
		t.Fatal("value should still update after close")
	}

	late := c.Subscribe(context.Background())
	if _, ok := <-late; ok {
		t.Fatal("subscription after close should be closed")
	}
}
