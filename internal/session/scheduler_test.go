package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabot/internal/schedule"
	"wabot/pkg/logx"
)

func newTestScheduler(t *testing.T, every time.Duration) (*Scheduler, *clockwork.FakeClock, *atomic.Int64) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	var ticks atomic.Int64
	s := NewScheduler(clock, schedule.Every(every), func(context.Context) { ticks.Add(1) }, logx.Nop())
	t.Cleanup(s.Close)
	return s, clock, &ticks
}

func TestSchedulerTicksWhileEnabled(t *testing.T) {
	s, clock, ticks := newTestScheduler(t, DefaultSendEvery)
	assert.False(t, s.Running())

	s.SetEnabled(true)
	assert.True(t, s.Running())
	assert.True(t, s.Enabled())

	for i := int64(1); i <= 3; i++ {
		clock.Advance(DefaultSendEvery)
		require.Eventually(t, func() bool { return ticks.Load() == i }, waitFor, tickFor)
		require.Eventually(t, func() bool { return !s.busy.Load() }, waitFor, tickFor)
	}

	s.SetEnabled(false)
	assert.False(t, s.Running())
	clock.Advance(2 * DefaultSendEvery)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 3, ticks.Load())
}

func TestSchedulerFirstTickAfterOnePeriod(t *testing.T) {
	s, clock, ticks := newTestScheduler(t, DefaultSendEvery)
	s.SetEnabled(true)

	clock.Advance(DefaultSendEvery - time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, ticks.Load())

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return ticks.Load() == 1 }, waitFor, tickFor)
}

func TestSchedulerEnableIsIdempotent(t *testing.T) {
	s, clock, ticks := newTestScheduler(t, DefaultSendEvery)
	s.SetEnabled(true)
	s.SetEnabled(true)
	s.SetEnabled(true)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(DefaultSendEvery)
	require.Eventually(t, func() bool { return ticks.Load() == 1 }, waitFor, tickFor)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, ticks.Load())
}

func TestSchedulerSetScheduleRearms(t *testing.T) {
	s, clock, ticks := newTestScheduler(t, DefaultSendEvery)
	s.SetEnabled(true)

	s.SetSchedule(schedule.Every(time.Second))
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return ticks.Load() == 1 }, waitFor, tickFor)

	// A stopped scheduler keeps the new period for the next start.
	s.Disable()
	s.SetSchedule(schedule.Every(2 * time.Second))
	assert.False(t, s.Running())
}

func TestSchedulerCloseCancelsTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	started := make(chan struct{})
	stopped := make(chan struct{})
	s := NewScheduler(clock, nil, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(stopped)
	}, logx.Nop())

	s.SetEnabled(true)
	clock.Advance(DefaultSendEvery)
	<-started
	s.Close()

	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("in-flight tick was not cancelled")
	}
	assert.False(t, s.Running())
	assert.False(t, s.Enabled())
}

func TestSchedulerIgnoresEnableAfterClose(t *testing.T) {
	s, clock, ticks := newTestScheduler(t, DefaultSendEvery)
	s.Close()

	s.SetEnabled(true)
	assert.False(t, s.Running())
	assert.False(t, s.Enabled())

	clock.Advance(2 * DefaultSendEvery)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, ticks.Load())
}
