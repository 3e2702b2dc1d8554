package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"wabot/internal/schedule"
	"wabot/pkg/logx"
)

// DefaultSendEvery is the auto-send period.
const DefaultSendEvery = 5 * time.Second

// Scheduler runs the auto-send tick while enabled.
//
// Invariant: timer is non-nil iff a tick is scheduled. seq changes on every
// arm and stop, so a fire that lost the race against Stop is ignored.
type Scheduler struct {
	clock clockwork.Clock
	log   logx.Logger
	tick  func(ctx context.Context)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	schedule cron.Schedule
	enabled  bool
	closed   bool
	timer    clockwork.Timer
	seq      uint64

	busy  atomic.Bool
	fired atomic.Uint64 // ticks that reached the send step
}

// NewScheduler returns a stopped scheduler. A nil sched means every DefaultSendEvery.
func NewScheduler(clock clockwork.Clock, sched cron.Schedule, tick func(ctx context.Context), log logx.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sched == nil {
		sched = schedule.Every(DefaultSendEvery)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:    clock,
		log:      log,
		tick:     tick,
		ctx:      ctx,
		cancel:   cancel,
		schedule: sched,
	}
}

// SetEnabled is the single entry point for both toggle sources. Enabling
// starts the loop if it is not running; disabling stops it.
func (s *Scheduler) SetEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.enabled = on
	if on {
		s.startLocked()
		return
	}
	s.stopLocked()
}

// Disable clears enabled and stops the timer.
func (s *Scheduler) Disable() { s.SetEnabled(false) }

func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Running reports whether a tick is currently scheduled.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// SetSchedule swaps the period. A running loop is re-armed on the new schedule.
func (s *Scheduler) SetSchedule(sched cron.Schedule) {
	if sched == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = sched
	if s.timer != nil {
		s.stopLocked()
		s.startLocked()
	}
}

// Close stops the loop and cancels an in-flight tick. Later SetEnabled
// calls are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.enabled = false
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()
	s.cancel()
}

func (s *Scheduler) startLocked() {
	if s.timer != nil {
		return
	}
	s.armLocked(s.clock.Now())
	s.log.Debug("auto-send loop started")
}

func (s *Scheduler) stopLocked() {
	s.seq++
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.log.Debug("auto-send loop stopped")
}

// armLocked schedules the next tick after from. Ticks are computed from the
// previous due time, not from when the callback ran, so the loop does not drift.
func (s *Scheduler) armLocked(from time.Time) {
	s.seq++
	seq := s.seq
	due := s.schedule.Next(from)
	wait := due.Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}
	s.timer = s.clock.AfterFunc(wait, func() { s.fire(seq, due) })
}

func (s *Scheduler) fire(seq uint64, due time.Time) {
	s.mu.Lock()
	if seq != s.seq || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.armLocked(due)
	enabled := s.enabled
	s.mu.Unlock()

	if !enabled {
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Debug("previous send still running; skipping tick")
		return
	}
	defer s.busy.Store(false)
	s.fired.Add(1)
	s.tick(s.ctx)
}
