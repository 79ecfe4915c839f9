package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string, int](0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", 1, time.Minute)

	got, ok := c.Get(ctx, "a")
	if !ok {
		t.Fatal("expected hit")
	}
	if got != 1 {
		t.Errorf("got %d, want 1", got)
	}

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New[string, string](0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected lazy removal, have %d entries", c.Len())
	}
}

func TestCache_Overwrite(t *testing.T) {
	c := New[string, int](0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", 1, time.Minute)
	c.Set(ctx, "k", 2, time.Minute)

	got, _ := c.Get(ctx, "k")
	if got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestCache_JanitorSweep(t *testing.T) {
	c := New[string, int](15 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", 1, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if c.Len() != 0 {
		t.Errorf("janitor did not sweep, have %d entries", c.Len())
	}
}
