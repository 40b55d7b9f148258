package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anya-bot/internal/surface"
	"anya-bot/internal/surface/surfacetest"
)

func TestSweep_ExpiresIdleAndReleasesCounters(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock, Config{})
	rec := surfacetest.New()
	reaper := NewReaper(r, rec, time.Minute, 15*time.Minute)
	ctx := context.Background()

	_, err := r.Create(ctx, spec("idle", 1, KindConversation, &fakeEngine{}))
	require.NoError(t, err)
	_, err = r.Create(ctx, spec("busy", 2, KindGame, &fakeEngine{}))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = r.Dispatch(ctx, "busy", 2, surface.Event{Payload: "hit"})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	var expired []Session
	reaper.OnExpired(func(s Session) { expired = append(expired, s) })
	assert.Equal(t, 1, reaper.Sweep(ctx))

	_, ok := r.Get("idle")
	assert.False(t, ok)
	_, ok = r.Get("busy")
	assert.True(t, ok, "recent activity keeps a session alive")

	require.Len(t, expired, 1)
	assert.Equal(t, "idle", expired[0].ID)
	require.Len(t, rec.Notes(), 1)
	assert.Contains(t, rec.Notes()[0], "inactivity")

	_, err = r.Create(ctx, spec("again", 1, KindConversation, &fakeEngine{}))
	assert.NoError(t, err, "the reaped user may start a new session")

	assert.Equal(t, 0, reaper.Sweep(ctx), "a second sweep finds nothing new")
	assert.Len(t, rec.Notes(), 1, "exactly one notice per expired session")
}

func TestSweep_SkipsLockedSession(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock, Config{})
	reaper := NewReaper(r, surfacetest.New(), time.Minute, time.Minute)
	ctx := context.Background()

	_, err := r.Create(ctx, spec("a", 1, KindGame, &fakeEngine{}))
	require.NoError(t, err)
	clock.Advance(time.Hour)

	r.locks.Lock("a")
	assert.Equal(t, 0, reaper.Sweep(ctx), "an in-flight action is never interrupted")
	r.locks.Unlock("a")

	assert.Equal(t, 1, reaper.Sweep(ctx))
}

func TestSweep_NotificationFailureDoesNotBlockCleanup(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock, Config{})
	rec := surfacetest.New()
	rec.NotifyErr = errors.New("chat gone")
	reaper := NewReaper(r, rec, time.Minute, time.Minute)
	ctx := context.Background()

	for i, id := range []string{"a", "b"} {
		_, err := r.Create(ctx, spec(id, int64(i+1), KindGame, &fakeEngine{}))
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 2, reaper.Sweep(ctx))
	assert.Equal(t, 0, r.Len())
	assert.Len(t, rec.Notes(), 2)
}

func TestReaper_StartStop(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock, Config{})
	reaper := NewReaper(r, surfacetest.New(), 10*time.Millisecond, time.Minute)
	ctx := context.Background()

	_, err := r.Create(ctx, spec("a", 1, KindGame, &fakeEngine{}))
	require.NoError(t, err)
	clock.Advance(time.Hour)

	reaper.Start(ctx)
	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)

	reaper.Stop()
	reaper.Stop()
}

func TestReaper_StopBeforeStart(t *testing.T) {
	reaper := NewReaper(newTestRegistry(newFakeClock(), Config{}), nil, time.Minute, time.Minute)
	done := make(chan struct{})
	go func() {
		reaper.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}
}

func TestReaper_ContextCancel(t *testing.T) {
	reaper := NewReaper(newTestRegistry(newFakeClock(), Config{}), nil, time.Hour, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	reaper.Start(ctx)
	cancel()

	select {
	case <-reaper.done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not exit on context cancel")
	}
	reaper.Stop()
}

func TestExpiryNotice(t *testing.T) {
	assert.Contains(t, ExpiryNotice(Session{Kind: KindConversation, Label: "Anya"}), "roleplay with Anya")
	assert.Contains(t, ExpiryNotice(Session{Kind: KindGame, Label: "blackjack"}), "blackjack game")
}
