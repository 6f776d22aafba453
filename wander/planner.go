// Package wander implements reactive local planning for a wheeled vehicle:
// bicycle-model trajectory rollouts are scored against the latest range scan
// under a wall-clock compute budget, and the cheapest steering angle wins.
package wander

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// ErrNoCandidates is returned by Decide when the rollout table holds no
// candidate steering angles.
var ErrNoCandidates = errors.New("no steering candidates to evaluate")

// Planner selects the cheapest candidate steering angle for a scan. One
// planner may serve concurrent Decide calls; it holds no per-cycle state.
type Planner struct {
	table       *RolloutTable
	laserOffset float64
	budget      time.Duration
	workers     int
	clock       clock.Clock
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithClock substitutes the clock used for the compute deadline.
func WithClock(c clock.Clock) PlannerOption {
	return func(p *Planner) {
		p.clock = c
	}
}

// WithWorkers bounds how many candidates are evaluated concurrently within a
// sweep. One means serial evaluation; zero or negative restores the default
// of one goroutine per candidate.
func WithWorkers(n int) PlannerOption {
	return func(p *Planner) {
		p.workers = n
	}
}

// NewPlanner returns a planner over the given table. The budget is the
// wall-clock time Decide may spend accumulating costs; a zero budget still
// completes one full sweep.
func NewPlanner(table *RolloutTable, laserOffset float64, budget time.Duration, opts ...PlannerOption) (*Planner, error) {
	if table == nil {
		return nil, errors.New("rollout table is required")
	}
	if budget < 0 {
		return nil, errors.Errorf("compute budget must be non-negative, got %v", budget)
	}
	p := &Planner{
		table:       table,
		laserOffset: laserOffset,
		budget:      budget,
		clock:       clock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Decision is the outcome of one planning cycle.
type Decision struct {
	// Candidate is the index of the winning steering angle.
	Candidate int
	// Steering is the winning steering angle in radians.
	Steering float64
	// Speed is the table's constant linear speed in m/s.
	Speed float64
	// Cost is the winner's accumulated cost averaged over the sweeps run.
	Cost float64
	// Sweeps is how many full candidate-by-horizon passes completed.
	Sweeps int
	// Elapsed is the wall-clock time the cycle took.
	Elapsed time.Duration
}

// Decide accumulates per-candidate costs for the scan until the budget
// elapses, then returns the arg-min candidate. At least one full sweep always
// completes, so the decision is data informed even under a spent budget.
// Further sweeps scale every accumulator by the same count and leave the
// ranking unchanged; they only soak up the remaining budget. Ties go to the
// lowest candidate index. Cancelling the context abandons the cycle and
// returns the context's error.
func (p *Planner) Decide(ctx context.Context, scan *Scan) (Decision, error) {
	n := p.table.NumCandidates()
	if n == 0 {
		return Decision{}, ErrNoCandidates
	}
	start := p.clock.Now()
	deadline := start.Add(p.budget)
	accum := make([]float64, n)
	sweeps := 0
	for {
		if err := p.sweep(ctx, scan, accum); err != nil {
			return Decision{}, err
		}
		sweeps++
		if !p.clock.Now().Before(deadline) {
			break
		}
	}
	win := floats.MinIdx(accum)
	return Decision{
		Candidate: win,
		Steering:  p.table.candidates[win],
		Speed:     p.table.params.Speed,
		Cost:      accum[win] / float64(sweeps),
		Sweeps:    sweeps,
		Elapsed:   p.clock.Now().Sub(start),
	}, nil
}

// sweep adds every (candidate, horizon step) cost into accum. Each candidate
// owns its accumulator cell, so parallel evaluation shares nothing; the group
// wait is a barrier keeping sweep counts equal across candidates.
func (p *Planner) sweep(ctx context.Context, scan *Scan, accum []float64) error {
	if p.workers == 1 {
		for i := range accum {
			if err := ctx.Err(); err != nil {
				return err
			}
			accum[i] += p.rolloutCost(i, scan)
		}
		return nil
	}
	errs, ctx := errgroup.WithContext(ctx)
	if p.workers > 1 {
		errs.SetLimit(p.workers)
	}
	for i := range accum {
		errs.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			accum[i] += p.rolloutCost(i, scan)
			return nil
		})
	}
	return errs.Wait()
}

func (p *Planner) rolloutCost(i int, scan *Scan) float64 {
	delta := p.table.candidates[i]
	var sum float64
	for _, pose := range p.table.rollouts[i] {
		sum += StepCost(delta, pose, scan, p.laserOffset)
	}
	return sum
}
