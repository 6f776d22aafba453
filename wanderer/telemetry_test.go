package wanderer

import (
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/viam-labs/laser-wanderer/wander"
)

func TestCycleTimingsSummary(t *testing.T) {
	var ct cycleTimings

	_, ok := ct.summarize()
	test.That(t, ok, test.ShouldBeFalse)

	for _, d := range []wander.Decision{
		{Elapsed: 10 * time.Millisecond, Sweeps: 2},
		{Elapsed: 20 * time.Millisecond, Sweeps: 4},
		{Elapsed: 30 * time.Millisecond, Sweeps: 6},
	} {
		ct.record(d)
	}

	summary, ok := ct.summarize()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, summary.medianMS, test.ShouldAlmostEqual, 20)
	test.That(t, summary.p95MS, test.ShouldAlmostEqual, 30)
	test.That(t, summary.maxMS, test.ShouldAlmostEqual, 30)
	test.That(t, summary.meanSweeps, test.ShouldAlmostEqual, 4)
}

func TestCycleTimingsWindow(t *testing.T) {
	var ct cycleTimings
	for i := 0; i < telemetryWindow+5; i++ {
		ct.record(wander.Decision{Elapsed: time.Duration(i) * time.Millisecond, Sweeps: 1})
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()
	test.That(t, len(ct.elapsedMS), test.ShouldEqual, telemetryWindow)
	// The oldest five timings were evicted.
	test.That(t, ct.elapsedMS[0], test.ShouldAlmostEqual, 5)
}
