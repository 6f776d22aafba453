// Package wanderer wires a scan source, the wander planner, and a command
// sink into a long-running reactive controller.
package wanderer

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/viam-labs/laser-wanderer/wander"
)

// receiveRetryDelay spaces retries after a scan source error.
const receiveRetryDelay = 500 * time.Millisecond

// ScanSource delivers scans to the controller. NextScan blocks until a scan
// arrives or the context ends; a drained source returns io.EOF.
type ScanSource interface {
	NextScan(ctx context.Context) (*wander.Scan, error)
	Close(ctx context.Context) error
}

// CommandSink receives one command per completed decision cycle.
type CommandSink interface {
	SendCommand(ctx context.Context, cmd Command) error
	Close(ctx context.Context) error
}

// PreviewSink receives the rollout endpoints at startup for display.
type PreviewSink interface {
	SendPreview(ctx context.Context, endpoints []wander.Pose) error
	Close(ctx context.Context) error
}

// Command is one cycle's output: the winning steering angle in radians plus
// the configured linear speed in m/s.
type Command struct {
	Steering float64 `json:"steering_angle"`
	Speed    float64 `json:"speed"`
}

// Stats are cumulative controller counters.
type Stats struct {
	// Scans received from the source.
	Scans int64
	// Cycles started.
	Cycles int64
	// Commands sent, one per completed cycle.
	Commands int64
	// Preempted cycles, cancelled by a newer scan mid-accumulation.
	Preempted int64
	// Failed cycles, skipped after a planner or sink error.
	Failed int64
	// Dropped scans, replaced in the mailbox before a cycle took them.
	Dropped int64
}

// Controller owns the precomputed rollout table and runs one decision cycle
// per received scan. A scan arriving mid-cycle cancels the cycle in flight
// and takes its place; the newest scan always wins.
type Controller struct {
	logger  golog.Logger
	cfg     *Config
	clk     clock.Clock
	table   *wander.RolloutTable
	planner *wander.Planner
	source  ScanSource
	sink    CommandSink
	preview PreviewSink

	// scanCh is a one-slot mailbox between the receive and decide loops.
	scanCh chan *wander.Scan

	cycleMu     sync.Mutex
	cycleCancel context.CancelFunc

	workers *goutils.StoppableWorkers

	scans     atomic.Int64
	cycles    atomic.Int64
	commands  atomic.Int64
	preempted atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	timings cycleTimings
}

// Option configures a Controller.
type Option func(*Controller)

// WithPreviewSink publishes the rollout endpoints to the sink at startup.
func WithPreviewSink(p PreviewSink) Option {
	return func(c *Controller) {
		c.preview = p
	}
}

// WithControllerClock substitutes the clock behind the planner's compute
// deadline.
func WithControllerClock(clk clock.Clock) Option {
	return func(c *Controller) {
		c.clk = clk
	}
}

// New builds a controller from a validated config and the injected
// transports. The rollout table is generated here, once; changing rollout
// parameters means building a new controller.
func New(cfg *Config, source ScanSource, sink CommandSink, logger golog.Logger, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if source == nil {
		return nil, errors.New("scan source is required")
	}
	if sink == nil {
		return nil, errors.New("command sink is required")
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}

	table, err := wander.GenerateRollouts(cfg.RolloutParams())
	if err != nil {
		return nil, err
	}

	c := &Controller{
		logger: logger,
		cfg:    cfg,
		clk:    clock.New(),
		table:  table,
		source: source,
		sink:   sink,
		scanCh: make(chan *wander.Scan, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	plannerOpts := []wander.PlannerOption{wander.WithClock(c.clk)}
	if cfg.Workers != 0 {
		plannerOpts = append(plannerOpts, wander.WithWorkers(cfg.Workers))
	}
	c.planner, err = wander.NewPlanner(table, cfg.LaserOffset, cfg.Budget(), plannerOpts...)
	if err != nil {
		return nil, err
	}

	logger.Infow("rollout table ready",
		"candidates", table.NumCandidates(),
		"horizon", table.Horizon(),
		"speed", cfg.Speed,
		"budget", cfg.Budget())
	return c, nil
}

// Start publishes the rollout preview and launches the receive and decide
// loops. It returns immediately.
func (c *Controller) Start(ctx context.Context) error {
	if c.workers != nil {
		return errors.New("controller already started")
	}
	if c.preview != nil {
		// Endpoints are body-frame and never change, so one publish serves
		// the whole process lifetime.
		if err := c.preview.SendPreview(ctx, c.table.Endpoints()); err != nil {
			c.logger.Errorw("rollout preview publish failed", "error", err)
		}
	}
	c.workers = goutils.NewBackgroundStoppableWorkers(c.receiveLoop, c.decideLoop)
	return nil
}

// Close stops the loops and closes the transports the controller owns.
func (c *Controller) Close(ctx context.Context) error {
	if c.workers != nil {
		c.workers.Stop()
	}
	err := multierr.Combine(
		c.source.Close(ctx),
		c.sink.Close(ctx),
	)
	if c.preview != nil {
		err = multierr.Append(err, c.preview.Close(ctx))
	}
	return err
}

// RolloutPreview returns the endpoint of every rollout in the body frame.
// Display callers own any world-frame transform.
func (c *Controller) RolloutPreview() []wander.Pose {
	return c.table.Endpoints()
}

// Stats returns a snapshot of the cumulative counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Scans:     c.scans.Load(),
		Cycles:    c.cycles.Load(),
		Commands:  c.commands.Load(),
		Preempted: c.preempted.Load(),
		Failed:    c.failed.Load(),
		Dropped:   c.dropped.Load(),
	}
}

func (c *Controller) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		scan, err := c.source.NextScan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info("scan source drained")
				return
			}
			c.logger.Errorw("scan receive failed", "error", err)
			if !goutils.SelectContextOrWait(ctx, receiveRetryDelay) {
				return
			}
			continue
		}
		if scan == nil {
			continue
		}
		c.scans.Inc()
		c.offer(scan)
	}
}

// offer preempts any cycle in flight and replaces the mailbox scan. The
// receive loop is the only producer, so the post-drain send cannot block.
func (c *Controller) offer(scan *wander.Scan) {
	c.cancelInflight()
	select {
	case c.scanCh <- scan:
	default:
		select {
		case <-c.scanCh:
			c.dropped.Inc()
		default:
		}
		c.scanCh <- scan
	}
}

func (c *Controller) cancelInflight() {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	if c.cycleCancel != nil {
		c.cycleCancel()
	}
}

func (c *Controller) decideLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case scan := <-c.scanCh:
			c.runCycle(ctx, scan)
		}
	}
}

func (c *Controller) runCycle(ctx context.Context, scan *wander.Scan) {
	cycleCtx, cancel := context.WithCancel(ctx)
	c.cycleMu.Lock()
	c.cycleCancel = cancel
	c.cycleMu.Unlock()
	defer func() {
		c.cycleMu.Lock()
		c.cycleCancel = nil
		c.cycleMu.Unlock()
		cancel()
	}()

	cycleID := uuid.NewString()
	c.cycles.Inc()
	c.logger.Debugw("cycle start", "cycle", cycleID, "rays", len(scan.Ranges))

	decision, err := c.planner.Decide(cycleCtx, scan)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, context.Canceled) {
			c.preempted.Inc()
			c.logger.Debugw("cycle preempted by newer scan", "cycle", cycleID)
			return
		}
		c.failed.Inc()
		c.logger.Errorw("decision failed", "cycle", cycleID, "error", err)
		return
	}

	cmd := Command{Steering: decision.Steering, Speed: decision.Speed}
	if err := c.sink.SendCommand(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.failed.Inc()
		c.logger.Errorw("command send failed", "cycle", cycleID, "error", err)
		return
	}

	c.timings.record(decision)
	c.logger.Debugw("cycle complete",
		"cycle", cycleID,
		"candidate", decision.Candidate,
		"steering", decision.Steering,
		"cost", decision.Cost,
		"sweeps", decision.Sweeps,
		"elapsed", decision.Elapsed)
	if n := c.commands.Inc(); c.cfg.TelemetryEvery > 0 && n%int64(c.cfg.TelemetryEvery) == 0 {
		c.logTelemetry()
	}
}

func (c *Controller) logTelemetry() {
	summary, ok := c.timings.summarize()
	if !ok {
		return
	}
	c.logger.Infow("controller telemetry",
		"scans", c.scans.Load(),
		"cycles", c.cycles.Load(),
		"commands", c.commands.Load(),
		"preempted", c.preempted.Load(),
		"failed", c.failed.Load(),
		"dropped", c.dropped.Load(),
		"cycle_ms_median", summary.medianMS,
		"cycle_ms_p95", summary.p95MS,
		"cycle_ms_max", summary.maxMS,
		"sweeps_mean", summary.meanSweeps)
}
