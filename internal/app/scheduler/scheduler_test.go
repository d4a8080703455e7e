package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

type countingSweeper struct {
	mu    sync.Mutex
	calls []time.Time
}

func (s *countingSweeper) Sweep(_ context.Context, now time.Time) entitlement.SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, now)
	return entitlement.SweepReport{Now: now}
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestApp_RunSweepsImmediatelyAndOnTick(t *testing.T) {
	sweeper := &countingSweeper{}
	app := NewWithSweeper(sweeper, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return sweeper.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestApp_UsesUTCNow(t *testing.T) {
	sweeper := &countingSweeper{}
	app := NewWithSweeper(sweeper, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	msk := time.FixedZone("MSK", 3*60*60)
	app.now = func() time.Time { return time.Date(2025, 1, 2, 3, 0, 0, 0, msk) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))

	require.Equal(t, 1, sweeper.count())
	assert.Equal(t, time.UTC, sweeper.calls[0].Location())
	assert.Equal(t, 0, sweeper.calls[0].Hour())
}

func TestNewWithSweeper_DefaultInterval(t *testing.T) {
	app := NewWithSweeper(&countingSweeper{}, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, time.Hour, app.interval)
}
