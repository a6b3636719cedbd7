package scholar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSleepRespectsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSleepZeroDuration(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), 0))
}

func TestPacerFirstWaitImmediate(t *testing.T) {
	t.Parallel()

	p := NewPacer(time.Hour, time.Hour)
	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	require.Less(t, time.Since(start), time.Second)
}

func TestPacerMeasuresFromDone(t *testing.T) {
	t.Parallel()

	p := NewPacer(10*time.Millisecond, 10*time.Millisecond)
	now := time.Now()
	p.now = func() time.Time { return now }
	p.Done()

	// Pretend enough wall time passed since the last request.
	p.now = func() time.Time { return now.Add(20 * time.Millisecond) }
	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	require.Less(t, time.Since(start), 5*time.Millisecond)
}

func TestUserAgentRotatorCycles(t *testing.T) {
	t.Parallel()

	r := NewUserAgentRotator([]string{"a", "b"})
	first := r.Next()
	second := r.Next()
	third := r.Next()
	require.NotEqual(t, first, second)
	require.Equal(t, first, third)
}

func TestUserAgentRotatorDefaults(t *testing.T) {
	t.Parallel()

	r := NewUserAgentRotator(nil)
	require.NotEmpty(t, r.Next())
}

func TestRotationScheduleBounds(t *testing.T) {
	t.Parallel()

	s := NewRotationSchedule(3, 3)
	require.False(t, s.Due())
	require.False(t, s.Due())
	require.True(t, s.Due())
	// Counter resets after a rotation.
	require.False(t, s.Due())
}
