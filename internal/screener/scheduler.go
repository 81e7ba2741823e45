package screener

import (
	"context"
	"time"

	"cryptoscreener/internal/clock"
)

// Scheduler emits a single close tick per wall-clock minute, carrying
// the just-closed minute timestamp (spec §4.7 step 2). It recomputes
// its next fire time from wall-clock each iteration rather than
// accumulating sleeps, so GC pauses or slow ticks never compound drift.
type Scheduler struct {
	clk            clock.Clock
	checkDelaySecs func() int
}

// NewScheduler creates a Scheduler. checkDelaySecs is read fresh on
// every tick so a settings-API update takes effect on the next minute
// without restarting the loop.
func NewScheduler(clk clock.Clock, checkDelaySecs func() int) *Scheduler {
	return &Scheduler{clk: clk, checkDelaySecs: checkDelaySecs}
}

// Run blocks until ctx is cancelled, invoking onTick(closedMinute) once
// per elapsed minute at minute+check_delay.
func (s *Scheduler) Run(ctx context.Context, onTick func(closedMinute int64)) {
	for {
		next := s.nextFireTime()
		wait := next.Sub(s.clk.Now())
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// The fire time sits inside the minute following the one that just
		// closed (fire = minute_start + check_delay, delay < 60s).
		closedMinute := clock.MinuteOf(next.Unix()) - 60
		onTick(closedMinute)
	}
}

func (s *Scheduler) delaySeconds() int {
	d := s.checkDelaySecs()
	if d <= 0 {
		return 10
	}
	return d
}

// nextFireTime computes the next minute+check_delay boundary strictly
// after now.
func (s *Scheduler) nextFireTime() time.Time {
	now := s.clk.Now()
	delay := int64(s.delaySeconds())
	currentMinute := clock.CurrentMinute(s.clk)

	fire := time.Unix(currentMinute+delay, 0).UTC()
	if !fire.After(now) {
		fire = time.Unix(currentMinute+60+delay, 0).UTC()
	}
	return fire
}
