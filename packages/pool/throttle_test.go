package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewThrottle_Unbounded(t *testing.T) {
	assert.Nil(t, NewThrottle(Limits{}))
	assert.True(t, Limits{}.Unbounded())
	assert.False(t, Limits{Rate: 1}.Unbounded())
	assert.Zero(t, (*Throttle)(nil).InFlight())
}

func TestThrottle_Concurrency(t *testing.T) {
	th := NewThrottle(Limits{MaxConcurrent: 2})
	require.NotNil(t, th)

	ctx := context.Background()
	require.NoError(t, th.Acquire(ctx))
	require.NoError(t, th.Acquire(ctx))
	assert.Equal(t, 2, th.InFlight())

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, th.Acquire(blocked), context.DeadlineExceeded)

	th.Release()
	assert.Equal(t, 1, th.InFlight())
	require.NoError(t, th.Acquire(ctx))
}

func TestThrottle_Rate(t *testing.T) {
	th := NewThrottle(Limits{Rate: 20, Burst: 1})
	require.NotNil(t, th)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, th.Acquire(ctx))
		th.Release()
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestThrottle_RateWaitReleasesSlot(t *testing.T) {
	th := NewThrottle(Limits{MaxConcurrent: 1, Rate: 0.001, Burst: 1})
	ctx := context.Background()

	require.NoError(t, th.Acquire(ctx))
	th.Release()

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, th.Acquire(short))
	assert.Zero(t, th.InFlight())
}
