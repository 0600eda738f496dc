package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Valid(t *testing.T) {
	tests := []string{"0 */6 * * *", "@every 6h", "@hourly", "30 14 * * 1-5"}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			s := New(nil)
			require.NoError(t, s.Schedule(expr, func(context.Context) {}))
			assert.Equal(t, expr, s.Expr())
		})
	}
}

func TestSchedule_Invalid(t *testing.T) {
	s := New(time.UTC)
	for _, expr := range []string{"", "not a cron", "61 * * * *", "* * * * * * *"} {
		assert.Error(t, s.Schedule(expr, func(context.Context) {}), expr)
	}
	assert.Empty(t, s.Expr())
	assert.True(t, s.Next().IsZero())
}

func TestSchedule_Replaces(t *testing.T) {
	s := New(time.UTC)
	require.NoError(t, s.Schedule("@every 1h", func(context.Context) {}))
	first := s.entryID
	require.NoError(t, s.Schedule("@every 2h", func(context.Context) {}))

	assert.NotEqual(t, first, s.entryID)
	assert.Len(t, s.cron.Entries(), 1)
	assert.Equal(t, "@every 2h", s.Expr())
}

func TestScheduler_RunsAndStops(t *testing.T) {
	s := New(time.UTC)
	var calls atomic.Int32
	require.NoError(t, s.Schedule("@every 1s", func(ctx context.Context) {
		calls.Add(1)
	}))

	s.Start()
	assert.False(t, s.Next().IsZero())
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_StopCancelsRunningTask(t *testing.T) {
	s := New(time.UTC)
	started := make(chan struct{}, 1)
	var cancelled atomic.Bool
	require.NoError(t, s.Schedule("@every 1s", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(errors.Is(ctx.Err(), context.Canceled))
	}))

	s.Start()
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("task never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.True(t, cancelled.Load())
}
