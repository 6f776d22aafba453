package wander

import (
	"math"

	"github.com/pkg/errors"
)

// RolloutParams configures rollout generation. Angles are radians, distances
// meters, durations seconds.
type RolloutParams struct {
	// Speed is the constant linear speed applied over the whole horizon.
	Speed float64
	// MinSteering and MaxSteering bound the candidate steering angles as the
	// half-open interval [MinSteering, MaxSteering).
	MinSteering float64
	MaxSteering float64
	// SteeringIncrement is the spacing between adjacent candidates.
	SteeringIncrement float64
	// Dt is the duration of one integration step.
	Dt float64
	// Horizon is the number of integration steps per rollout.
	Horizon int
	// Wheelbase is the distance between the axles.
	Wheelbase float64
}

func (p RolloutParams) validate() error {
	if p.Wheelbase <= 0 {
		return errors.Errorf("wheelbase must be positive, got %f", p.Wheelbase)
	}
	if p.SteeringIncrement <= 0 {
		return errors.Errorf("steering increment must be positive, got %f", p.SteeringIncrement)
	}
	if p.MaxSteering <= p.MinSteering {
		return errors.Errorf(
			"steering range [%f, %f) holds no candidates", p.MinSteering, p.MaxSteering)
	}
	if p.Dt <= 0 {
		return errors.Errorf("step duration must be positive, got %f", p.Dt)
	}
	if p.Horizon <= 0 {
		return errors.Errorf("horizon must be positive, got %d", p.Horizon)
	}
	return nil
}

// RolloutTable holds one precomputed trajectory per candidate steering angle.
// It is built once at startup and never mutated, so it is safe for concurrent
// readers.
type RolloutTable struct {
	params     RolloutParams
	candidates []float64
	rollouts   [][]Pose
}

// GenerateRollouts builds the candidate set and integrates one rollout per
// candidate from the body origin (0, 0, 0). Candidate i holds steering angle
// MinSteering + i*SteeringIncrement; pose t of a rollout is the state after
// t+1 integration steps.
func GenerateRollouts(params RolloutParams) (*RolloutTable, error) {
	if err := params.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid rollout configuration")
	}
	n := int(math.Ceil((params.MaxSteering - params.MinSteering) / params.SteeringIncrement))
	candidates := make([]float64, n)
	rollouts := make([][]Pose, n)
	for i := range candidates {
		delta := params.MinSteering + float64(i)*params.SteeringIncrement
		candidates[i] = delta
		u := Control{Speed: params.Speed, Steering: delta, Dt: params.Dt}
		poses := make([]Pose, params.Horizon)
		var pose Pose
		for t := 0; t < params.Horizon; t++ {
			pose = Step(pose, u, params.Wheelbase)
			poses[t] = pose
		}
		rollouts[i] = poses
	}
	return &RolloutTable{params: params, candidates: candidates, rollouts: rollouts}, nil
}

// Params returns the parameters the table was generated from.
func (rt *RolloutTable) Params() RolloutParams {
	return rt.params
}

// NumCandidates returns the number of candidate steering angles.
func (rt *RolloutTable) NumCandidates() int {
	return len(rt.candidates)
}

// Horizon returns the number of poses in each rollout.
func (rt *RolloutTable) Horizon() int {
	return rt.params.Horizon
}

// Candidate returns the steering angle of candidate i.
func (rt *RolloutTable) Candidate(i int) float64 {
	return rt.candidates[i]
}

// Candidates returns a copy of all candidate steering angles in index order.
func (rt *RolloutTable) Candidates() []float64 {
	out := make([]float64, len(rt.candidates))
	copy(out, rt.candidates)
	return out
}

// Rollout returns a copy of candidate i's pose sequence.
func (rt *RolloutTable) Rollout(i int) []Pose {
	out := make([]Pose, len(rt.rollouts[i]))
	copy(out, rt.rollouts[i])
	return out
}

// Endpoints returns the final pose of every rollout in candidate order.
func (rt *RolloutTable) Endpoints() []Pose {
	out := make([]Pose, len(rt.rollouts))
	for i, poses := range rt.rollouts {
		out[i] = poses[len(poses)-1]
	}
	return out
}
