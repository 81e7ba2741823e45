package screener

// GapDetector observes a per-symbol stream of advancing minute
// boundaries and reports how many whole minutes were skipped between
// observations — the watcher's trigger for a REST backfill task.
// Grounded on the teacher's closedetector.Detector "observe-then-decide"
// shape, repurposed from close-price stability to minute continuity.
type GapDetector struct {
	lastMinute int64
}

// Observe records the builder's current forming minute and reports the
// number of whole minutes silently skipped since the previous call, if
// any. The first observation never reports a gap (there is nothing to
// compare against yet).
func (g *GapDetector) Observe(currentMinute int64) (missingMinutes int64, found bool) {
	if g.lastMinute == 0 {
		g.lastMinute = currentMinute
		return 0, false
	}
	if currentMinute <= g.lastMinute {
		return 0, false
	}

	gap := (currentMinute-g.lastMinute)/60 - 1
	g.lastMinute = currentMinute
	if gap > 0 {
		return gap, true
	}
	return 0, false
}
