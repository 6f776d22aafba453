package wanderer

import (
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/viam-labs/laser-wanderer/wander"
)

// telemetryWindow bounds how many recent cycles feed the timing summary.
const telemetryWindow = 512

// cycleTimings keeps a sliding window of decision timings for the periodic
// telemetry line.
type cycleTimings struct {
	mu        sync.Mutex
	elapsedMS []float64
	sweeps    []float64
}

func (ct *cycleTimings) record(d wander.Decision) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if len(ct.elapsedMS) >= telemetryWindow {
		ct.elapsedMS = ct.elapsedMS[1:]
		ct.sweeps = ct.sweeps[1:]
	}
	ct.elapsedMS = append(ct.elapsedMS, float64(d.Elapsed.Microseconds())/1e3)
	ct.sweeps = append(ct.sweeps, float64(d.Sweeps))
}

type timingSummary struct {
	medianMS   float64
	p95MS      float64
	maxMS      float64
	meanSweeps float64
}

func (ct *cycleTimings) summarize() (timingSummary, bool) {
	ct.mu.Lock()
	elapsed := append([]float64(nil), ct.elapsedMS...)
	sweeps := append([]float64(nil), ct.sweeps...)
	ct.mu.Unlock()
	if len(elapsed) == 0 {
		return timingSummary{}, false
	}

	var summary timingSummary
	var err error
	if summary.medianMS, err = stats.Median(elapsed); err != nil {
		return timingSummary{}, false
	}
	if summary.p95MS, err = stats.Percentile(elapsed, 95); err != nil {
		return timingSummary{}, false
	}
	if summary.maxMS, err = stats.Max(elapsed); err != nil {
		return timingSummary{}, false
	}
	if summary.meanSweeps, err = stats.Mean(sweeps); err != nil {
		return timingSummary{}, false
	}
	return summary, true
}
