package wander

import (
	"testing"

	"go.viam.com/test"
)

// The stock lab parameters for a 1/10th scale car.
func defaultRolloutParams() RolloutParams {
	return RolloutParams{
		Speed:             1.0,
		MinSteering:       -0.34,
		MaxSteering:       0.341,
		SteeringIncrement: 0.113,
		Dt:                0.01,
		Horizon:           300,
		Wheelbase:         0.33,
	}
}

func TestGenerateRolloutsCandidates(t *testing.T) {
	params := defaultRolloutParams()
	table, err := GenerateRollouts(params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, table.NumCandidates(), test.ShouldEqual, 7)

	candidates := table.Candidates()
	for i, delta := range candidates {
		test.That(t, delta, test.ShouldAlmostEqual,
			params.MinSteering+float64(i)*params.SteeringIncrement, 1e-12)
		test.That(t, delta, test.ShouldBeLessThan, params.MaxSteering)
	}
}

func TestGenerateRolloutsShape(t *testing.T) {
	params := defaultRolloutParams()
	table, err := GenerateRollouts(params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, table.Horizon(), test.ShouldEqual, params.Horizon)

	for i := 0; i < table.NumCandidates(); i++ {
		rollout := table.Rollout(i)
		test.That(t, rollout, test.ShouldHaveLength, params.Horizon)

		// Pose t is the state after t+1 integration steps from the origin.
		u := Control{Speed: params.Speed, Steering: table.Candidate(i), Dt: params.Dt}
		var pose Pose
		for t2 := 0; t2 < params.Horizon; t2++ {
			pose = Step(pose, u, params.Wheelbase)
			test.That(t, rollout[t2], test.ShouldResemble, pose)
		}
	}
}

func TestGenerateRolloutsValidation(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*RolloutParams)
	}{
		{"zero increment", func(p *RolloutParams) { p.SteeringIncrement = 0 }},
		{"negative increment", func(p *RolloutParams) { p.SteeringIncrement = -0.1 }},
		{"inverted range", func(p *RolloutParams) { p.MinSteering, p.MaxSteering = 0.3, -0.3 }},
		{"empty range", func(p *RolloutParams) { p.MaxSteering = p.MinSteering }},
		{"zero dt", func(p *RolloutParams) { p.Dt = 0 }},
		{"zero horizon", func(p *RolloutParams) { p.Horizon = 0 }},
		{"zero wheelbase", func(p *RolloutParams) { p.Wheelbase = 0 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			params := defaultRolloutParams()
			tc.mutate(&params)
			_, err := GenerateRollouts(params)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, "invalid rollout configuration")
		})
	}
}

func TestRolloutTableImmutable(t *testing.T) {
	table, err := GenerateRollouts(defaultRolloutParams())
	test.That(t, err, test.ShouldBeNil)

	candidates := table.Candidates()
	candidates[0] = 99
	test.That(t, table.Candidate(0), test.ShouldNotEqual, 99)

	rollout := table.Rollout(0)
	rollout[0] = Pose{X: 99}
	test.That(t, table.Rollout(0)[0], test.ShouldNotResemble, Pose{X: 99})

	endpoints := table.Endpoints()
	endpoints[0] = Pose{Y: 99}
	test.That(t, table.Endpoints()[0], test.ShouldNotResemble, Pose{Y: 99})
}

func TestEndpoints(t *testing.T) {
	table, err := GenerateRollouts(defaultRolloutParams())
	test.That(t, err, test.ShouldBeNil)

	endpoints := table.Endpoints()
	test.That(t, endpoints, test.ShouldHaveLength, table.NumCandidates())
	for i, end := range endpoints {
		rollout := table.Rollout(i)
		test.That(t, end, test.ShouldResemble, rollout[len(rollout)-1])
	}
}
