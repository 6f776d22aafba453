package wanderer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/viam-labs/laser-wanderer/wander"
)

// Stock parameters for a 1/10th scale car with a 330 mm wheelbase. Ensure
// fills these in for fields left at zero.
const (
	DefaultSpeed             = 1.0
	DefaultMinSteering       = -0.34
	DefaultMaxSteering       = 0.341
	DefaultSteeringIncrement = 0.113
	DefaultStepDurationSec   = 0.01
	DefaultHorizon           = 300
	DefaultComputeBudgetSec  = 0.09
	DefaultLaserOffset       = 1.0
	DefaultWheelbase         = 0.33
	DefaultTelemetryEvery    = 100
)

// Attributes is a free-form transport attribute map, decoded per model with
// DecodeAttributes.
type Attributes map[string]interface{}

// TransportConfig names a registered transport model and carries its
// attributes.
type TransportConfig struct {
	Model      string     `json:"model"`
	Attributes Attributes `json:"attributes"`
}

// Config configures the controller: rollout geometry, the planning budget,
// and the transports to wire in. Durations are seconds, angles radians,
// distances meters.
type Config struct {
	Speed             float64 `json:"speed"`
	MinSteering       float64 `json:"min_steering"`
	MaxSteering       float64 `json:"max_steering"`
	SteeringIncrement float64 `json:"steering_increment"`
	StepDurationSec   float64 `json:"step_duration_sec"`
	Horizon           int     `json:"horizon"`
	ComputeBudgetSec  float64 `json:"compute_budget_sec"`
	LaserOffset       float64 `json:"laser_offset"`
	Wheelbase         float64 `json:"wheelbase"`
	// Workers bounds parallel candidate evaluation; zero keeps the planner
	// default of one goroutine per candidate.
	Workers int `json:"workers"`
	// TelemetryEvery logs a timing summary every that many commands.
	TelemetryEvery int `json:"telemetry_every"`

	Source  *TransportConfig `json:"source"`
	Command *TransportConfig `json:"command"`
	Preview *TransportConfig `json:"preview,omitempty"`
}

// Ensure fills zero fields with the documented defaults. The steering range
// is defaulted only when both bounds are zero so a range deliberately
// starting or ending at zero survives.
func (c *Config) Ensure() {
	if c.Speed == 0 {
		c.Speed = DefaultSpeed
	}
	if c.MinSteering == 0 && c.MaxSteering == 0 {
		c.MinSteering = DefaultMinSteering
		c.MaxSteering = DefaultMaxSteering
	}
	if c.SteeringIncrement == 0 {
		c.SteeringIncrement = DefaultSteeringIncrement
	}
	if c.StepDurationSec == 0 {
		c.StepDurationSec = DefaultStepDurationSec
	}
	if c.Horizon == 0 {
		c.Horizon = DefaultHorizon
	}
	if c.ComputeBudgetSec == 0 {
		c.ComputeBudgetSec = DefaultComputeBudgetSec
	}
	if c.LaserOffset == 0 {
		c.LaserOffset = DefaultLaserOffset
	}
	if c.Wheelbase == 0 {
		c.Wheelbase = DefaultWheelbase
	}
	if c.TelemetryEvery == 0 {
		c.TelemetryEvery = DefaultTelemetryEvery
	}
	if c.Source == nil {
		c.Source = &TransportConfig{Model: "fake"}
	}
	if c.Command == nil {
		c.Command = &TransportConfig{Model: "fake"}
	}
}

// Validate fails fast on parameters the rollout generator or planner would
// reject, so a bad config never reaches the control loop.
func (c *Config) Validate(path string) error {
	if c.Wheelbase <= 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("wheelbase must be positive, got %f", c.Wheelbase))
	}
	if c.SteeringIncrement <= 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("steering_increment must be positive, got %f", c.SteeringIncrement))
	}
	if c.MaxSteering <= c.MinSteering {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("steering range [%f, %f) holds no candidates", c.MinSteering, c.MaxSteering))
	}
	if c.StepDurationSec <= 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("step_duration_sec must be positive, got %f", c.StepDurationSec))
	}
	if c.Horizon <= 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("horizon must be positive, got %d", c.Horizon))
	}
	if c.ComputeBudgetSec <= 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("compute_budget_sec must be positive, got %f", c.ComputeBudgetSec))
	}
	if c.Workers < 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("workers must be non-negative, got %d", c.Workers))
	}
	if c.TelemetryEvery < 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("telemetry_every must be non-negative, got %d", c.TelemetryEvery))
	}
	if c.Source == nil {
		return goutils.NewConfigValidationFieldRequiredError(path, "source")
	}
	if c.Source.Model == "" {
		return goutils.NewConfigValidationFieldRequiredError(fmt.Sprintf("%s.source", path), "model")
	}
	if c.Command == nil {
		return goutils.NewConfigValidationFieldRequiredError(path, "command")
	}
	if c.Command.Model == "" {
		return goutils.NewConfigValidationFieldRequiredError(fmt.Sprintf("%s.command", path), "model")
	}
	if c.Preview != nil && c.Preview.Model == "" {
		return goutils.NewConfigValidationFieldRequiredError(fmt.Sprintf("%s.preview", path), "model")
	}
	return nil
}

// RolloutParams maps the config onto the planning library's parameters.
func (c *Config) RolloutParams() wander.RolloutParams {
	return wander.RolloutParams{
		Speed:             c.Speed,
		MinSteering:       c.MinSteering,
		MaxSteering:       c.MaxSteering,
		SteeringIncrement: c.SteeringIncrement,
		Dt:                c.StepDurationSec,
		Horizon:           c.Horizon,
		Wheelbase:         c.Wheelbase,
	}
}

// Budget returns the per-cycle compute budget as a duration.
func (c *Config) Budget() time.Duration {
	return time.Duration(c.ComputeBudgetSec * float64(time.Second))
}

// DefaultConfig returns a config of the documented defaults with fake
// transports, which is enough to run the controller against the built-in
// simulated world.
func DefaultConfig() *Config {
	var cfg Config
	cfg.Ensure()
	return &cfg
}

// ReadConfig loads, defaults, and validates a JSON config file. Environment
// variable references in the file are substituted before parsing.
func ReadConfig(path string) (*Config, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read config %q", path)
	}
	var cfg Config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, errors.Wrapf(err, "unable to parse config %q", path)
	}
	cfg.Ensure()
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return &cfg, nil
}
