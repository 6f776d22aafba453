// Package fake provides an in-memory scan source that ray-casts a simulated
// world, plus recording sinks, for tests and demos.
package fake

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	goutils "go.viam.com/utils"

	"github.com/viam-labs/laser-wanderer/wander"
	"github.com/viam-labs/laser-wanderer/wanderer"
)

func init() {
	wanderer.RegisterTransport("fake", wanderer.Registration{
		Source: func(ctx context.Context, attrs wanderer.Attributes, logger golog.Logger) (wanderer.ScanSource, error) {
			var cfg SourceConfig
			if err := wanderer.DecodeAttributes(attrs, &cfg); err != nil {
				return nil, err
			}
			return NewSource(cfg, logger), nil
		},
		Command: func(ctx context.Context, attrs wanderer.Attributes, logger golog.Logger) (wanderer.CommandSink, error) {
			return NewCommandRecorder(), nil
		},
		Preview: func(ctx context.Context, attrs wanderer.Attributes, logger golog.Logger) (wanderer.PreviewSink, error) {
			return NewPreviewRecorder(), nil
		},
	})
}

const (
	defaultScanHz   = 10.0
	defaultRayCount = 360
	defaultRangeMin = 0.02
	defaultRangeMax = 30.0
)

// Disc is a circular obstacle in the body frame.
type Disc struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// SourceConfig shapes the synthesized scans. Zero fields take the defaults;
// the angular layout defaults to a full sweep starting at -pi when both
// angle fields are zero.
type SourceConfig struct {
	ScanHz         float64 `json:"scan_hz"`
	RayCount       int     `json:"ray_count"`
	AngleMin       float64 `json:"angle_min"`
	AngleIncrement float64 `json:"angle_increment"`
	RangeMin       float64 `json:"range_min"`
	RangeMax       float64 `json:"range_max"`
	Discs          []Disc  `json:"discs"`
}

func (cfg *SourceConfig) ensure() {
	if cfg.ScanHz <= 0 {
		cfg.ScanHz = defaultScanHz
	}
	if cfg.RayCount <= 0 {
		cfg.RayCount = defaultRayCount
	}
	if cfg.AngleMin == 0 && cfg.AngleIncrement == 0 {
		cfg.AngleMin = -math.Pi
		cfg.AngleIncrement = 2 * math.Pi / float64(cfg.RayCount)
	}
	if cfg.RangeMin == 0 && cfg.RangeMax == 0 {
		cfg.RangeMin = defaultRangeMin
		cfg.RangeMax = defaultRangeMax
	}
}

// Source synthesizes scans of a static disc world at a fixed rate. The world
// never moves, so the ranges are cast once and reused.
type Source struct {
	logger   golog.Logger
	interval time.Duration
	template wander.Scan
	closed   chan struct{}
	once     sync.Once
}

// NewSource builds a source from the config, applying defaults to zero
// fields.
func NewSource(cfg SourceConfig, logger golog.Logger) *Source {
	cfg.ensure()
	template := wander.Scan{
		AngleMin:       cfg.AngleMin,
		AngleIncrement: cfg.AngleIncrement,
		RangeMin:       cfg.RangeMin,
		RangeMax:       cfg.RangeMax,
		Ranges:         make([]float64, cfg.RayCount),
	}
	for i := range template.Ranges {
		bearing := template.Bearing(i)
		template.Ranges[i] = castRay(bearing, cfg.Discs, cfg.RangeMax)
	}
	return &Source{
		logger:   logger,
		interval: time.Duration(float64(time.Second) / cfg.ScanHz),
		template: template,
		closed:   make(chan struct{}),
	}
}

// NextScan waits one synthesis interval and returns a fresh scan.
func (s *Source) NextScan(ctx context.Context) (*wander.Scan, error) {
	select {
	case <-s.closed:
		return nil, io.EOF
	default:
	}
	if !goutils.SelectContextOrWait(ctx, s.interval) {
		return nil, ctx.Err()
	}
	scan := s.template
	scan.Ranges = append([]float64(nil), s.template.Ranges...)
	scan.Stamp = time.Now()
	return &scan, nil
}

// Close stops the source; subsequent NextScan calls return io.EOF.
func (s *Source) Close(ctx context.Context) error {
	s.once.Do(func() {
		close(s.closed)
	})
	return nil
}

// castRay returns the distance to the nearest disc surface along the
// bearing, or NaN when the ray escapes the world.
func castRay(bearing float64, discs []Disc, maxRange float64) float64 {
	dir := r2.Point{X: math.Cos(bearing), Y: math.Sin(bearing)}
	nearest := math.NaN()
	for _, d := range discs {
		center := r2.Point{X: d.X, Y: d.Y}
		along := center.Dot(dir)
		perpSq := center.Dot(center) - along*along
		rSq := d.Radius * d.Radius
		if perpSq > rSq {
			continue
		}
		t := along - math.Sqrt(rSq-perpSq)
		if t <= 0 {
			// Behind the sensor, or the sensor sits inside the disc.
			continue
		}
		if maxRange > 0 && t > maxRange {
			continue
		}
		if math.IsNaN(nearest) || t < nearest {
			nearest = t
		}
	}
	return nearest
}

// CommandRecorder is a command sink that remembers everything sent to it.
type CommandRecorder struct {
	mu       sync.Mutex
	commands []wanderer.Command
	nextErr  error
}

// NewCommandRecorder returns an empty recorder.
func NewCommandRecorder() *CommandRecorder {
	return &CommandRecorder{}
}

// SendCommand records the command, or returns the injected error when one is
// pending.
func (r *CommandRecorder) SendCommand(ctx context.Context, cmd wanderer.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nextErr != nil {
		err := r.nextErr
		r.nextErr = nil
		return err
	}
	r.commands = append(r.commands, cmd)
	return nil
}

// FailNext makes the next SendCommand return err instead of recording.
func (r *CommandRecorder) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextErr = err
}

// Len returns how many commands were recorded.
func (r *CommandRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

// Commands returns a copy of the recorded commands in send order.
func (r *CommandRecorder) Commands() []wanderer.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wanderer.Command(nil), r.commands...)
}

// WaitForCommands blocks until at least n commands were recorded or the
// context ends.
func (r *CommandRecorder) WaitForCommands(ctx context.Context, n int) error {
	for r.Len() < n {
		if !goutils.SelectContextOrWait(ctx, 10*time.Millisecond) {
			return ctx.Err()
		}
	}
	return nil
}

// Close is a no-op.
func (r *CommandRecorder) Close(ctx context.Context) error {
	return nil
}

// PreviewRecorder is a preview sink that remembers every publish.
type PreviewRecorder struct {
	mu       sync.Mutex
	previews [][]wander.Pose
}

// NewPreviewRecorder returns an empty recorder.
func NewPreviewRecorder() *PreviewRecorder {
	return &PreviewRecorder{}
}

// SendPreview records the endpoints.
func (r *PreviewRecorder) SendPreview(ctx context.Context, endpoints []wander.Pose) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.previews = append(r.previews, append([]wander.Pose(nil), endpoints...))
	return nil
}

// Previews returns a copy of every recorded publish.
func (r *PreviewRecorder) Previews() [][]wander.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]wander.Pose, len(r.previews))
	copy(out, r.previews)
	return out
}

// Close is a no-op.
func (r *PreviewRecorder) Close(ctx context.Context) error {
	return nil
}

// ManualSource delivers exactly the scans pushed into it, for tests that
// need precise cycle control.
type ManualSource struct {
	ch   chan *wander.Scan
	done chan struct{}
	once sync.Once
}

// NewManualSource returns a source buffering up to n pushed scans.
func NewManualSource(n int) *ManualSource {
	return &ManualSource{
		ch:   make(chan *wander.Scan, n),
		done: make(chan struct{}),
	}
}

// Push queues one scan for delivery.
func (s *ManualSource) Push(scan *wander.Scan) {
	s.ch <- scan
}

// Finish marks the source drained once the queue empties.
func (s *ManualSource) Finish() {
	s.once.Do(func() {
		close(s.done)
	})
}

// NextScan returns the next pushed scan, or io.EOF once the source is
// finished and drained.
func (s *ManualSource) NextScan(ctx context.Context) (*wander.Scan, error) {
	select {
	case scan := <-s.ch:
		return scan, nil
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case scan := <-s.ch:
		return scan, nil
	case <-s.done:
		return nil, io.EOF
	}
}

// Close finishes the source.
func (s *ManualSource) Close(ctx context.Context) error {
	s.Finish()
	return nil
}
