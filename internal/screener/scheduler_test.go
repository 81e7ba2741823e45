package screener

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func TestSchedulerNextFireTimeIsMinutePlusDelay(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 12, 30, 5, 0, time.UTC)}
	s := NewScheduler(clk, func() int { return 10 })

	fire := s.nextFireTime()
	want := time.Date(2026, 1, 1, 12, 30, 10, 0, time.UTC)
	if !fire.Equal(want) {
		t.Errorf("nextFireTime() = %v, want %v", fire, want)
	}
}

func TestSchedulerNextFireTimeRollsToNextMinuteIfDelayPassed(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 12, 30, 45, 0, time.UTC)}
	s := NewScheduler(clk, func() int { return 10 })

	fire := s.nextFireTime()
	want := time.Date(2026, 1, 1, 12, 31, 10, 0, time.UTC)
	if !fire.Equal(want) {
		t.Errorf("nextFireTime() = %v, want %v", fire, want)
	}
}

func TestSchedulerRunFiresWithClosedMinute(t *testing.T) {
	clk := &fakeClock{now: time.Now().UTC().Add(-1 * time.Millisecond)}
	// Force an immediate fire by putting now right at the boundary.
	base := clk.Now().Truncate(time.Minute)
	clk.now = base.Add(9 * time.Second)

	s := NewScheduler(clk, func() int { return 10 })

	ctx, cancel := context.WithCancel(context.Background())
	fired := make(chan int64, 1)
	go s.Run(ctx, func(closedMinute int64) {
		select {
		case fired <- closedMinute:
		default:
		}
		cancel()
	})

	select {
	case got := <-fired:
		want := base.Unix() - 60
		if got != want {
			t.Errorf("onTick closedMinute = %d, want %d", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not fire in time")
	}
}
