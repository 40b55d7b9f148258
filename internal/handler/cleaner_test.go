package handler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anya-bot/internal/surface"
	"anya-bot/internal/surface/surfacetest"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCleaner_Clean(t *testing.T) {
	rec := surfacetest.New()
	clock := &stepClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCleaner(rec, time.Minute, time.Hour, clock.Now)
	ctx := context.Background()

	old := surface.Ref{ChatID: -1, MessageID: 1}
	c.Track(old)
	clock.Advance(30 * time.Second)
	fresh := surface.Ref{ChatID: -1, MessageID: 2}
	c.Track(fresh)

	assert.Zero(t, c.Clean(ctx))
	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, c.Clean(ctx))
	assert.Equal(t, []surface.Ref{old}, rec.Deleted())
	assert.Equal(t, 1, c.Pending())

	rec.DeleteErr = errors.New("message can't be deleted")
	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.Clean(ctx), "failed deletes are dropped")
	assert.Zero(t, c.Pending())
}

func TestCleaner_StartStop(t *testing.T) {
	rec := surfacetest.New()
	c := NewCleaner(rec, time.Millisecond, 5*time.Millisecond, nil)
	c.Track(surface.Ref{ChatID: -1, MessageID: 1})

	c.Start(context.Background())
	assert.Eventually(t, func() bool { return len(rec.Deleted()) == 1 }, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()
}

func TestCleaner_OnSweep(t *testing.T) {
	c := NewCleaner(surfacetest.New(), time.Minute, time.Millisecond, nil)
	var mu sync.Mutex
	sweeps := 0
	c.OnSweep(func() {
		mu.Lock()
		sweeps++
		mu.Unlock()
	})

	c.Start(context.Background())
	defer c.Stop()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sweeps >= 2
	}, time.Second, time.Millisecond)
}

func TestCleaner_StopWithoutStart(t *testing.T) {
	c := NewCleaner(surfacetest.New(), 0, 0, nil)
	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked")
	}
}

func TestCleaner_ContextCancel(t *testing.T) {
	c := NewCleaner(surfacetest.New(), time.Minute, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()

	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit")
	}
	require.NotPanics(t, c.Stop)
}
