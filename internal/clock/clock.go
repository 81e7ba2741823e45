// Package clock provides the monotone, deterministic time helpers every
// time-sensitive decision in the screener routes through — the "last
// closed minute" boundary is what makes a stream-derived candle line up
// with what the exchange treats as closed.
package clock

import "time"

// Clock abstracts wall-clock access so the scheduler and builder are
// deterministic on input clock and can be driven by a fake in tests.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock backed by time.Now.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// NowSeconds returns the current wall-clock time as whole seconds.
func NowSeconds(c Clock) int64 { return c.Now().Unix() }

// MinuteOf rounds a seconds timestamp down to its containing minute.
func MinuteOf(ts int64) int64 { return ts - (ts % 60) }

// CurrentMinute returns the minute the clock is currently in.
func CurrentMinute(c Clock) int64 { return MinuteOf(NowSeconds(c)) }

// LastClosedMinute returns the most recent whole minute that has fully
// elapsed — the boundary the scheduler fires a close tick for.
func LastClosedMinute(c Clock) int64 { return CurrentMinute(c) - 60 }
