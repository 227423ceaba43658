package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/replay"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingSweepsExpiredReplayEntries(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testNow)
	guard := replay.NewMemoryGuard(clock, 90*time.Second)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hk := NewHousekeepingService(guard, clock, logger, time.Hour)
	hk.Metrics = NewMetrics(prometheus.NewRegistry())

	for step := uint64(1); step <= 3; step++ {
		_, err := guard.CheckAndConsume(ctx, "user-1", step)
		require.NoError(t, err)
	}

	hk.cleanup()
	require.Equal(t, 3, guard.Len())

	clock.Advance(90 * time.Second)
	hk.cleanup()
	require.Equal(t, 0, guard.Len())
	require.Equal(t, 3.0, testutil.ToFloat64(hk.Metrics.ReplaySwept))
}

func TestHousekeepingStartStop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	guard := replay.NewMemoryGuard(clock, time.Second)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := guard.CheckAndConsume(context.Background(), "user-1", 1)
	require.NoError(t, err)
	clock.Advance(time.Second)

	hk := NewHousekeepingService(guard, clock, logger, 0)
	require.Equal(t, time.Minute, hk.Interval)

	// Start sweeps once before returning.
	require.NoError(t, hk.Start())
	require.Equal(t, 0, guard.Len())
	hk.Stop()
}
