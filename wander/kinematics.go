package wander

import "math"

// minSteeringAngle is the magnitude below which a steering angle is treated as
// driving straight. The arc closed form divides by sin(2*beta), which is near
// zero there.
const minSteeringAngle = 1e-2

// Pose is a planar pose in the body planning frame: meters for X and Y,
// heading in radians wrapped to [0, 2pi).
type Pose struct {
	X     float64
	Y     float64
	Theta float64
}

// Control is the input held for one integration step: linear speed in m/s,
// steering angle in radians, and step duration in seconds.
type Control struct {
	Speed    float64
	Steering float64
	Dt       float64
}

// Step advances a pose by one bicycle-model integration step. Steering below
// minSteeringAngle moves the pose in a straight line with the heading
// unchanged; otherwise the exact constant-steering arc is applied. The
// returned heading is always wrapped to [0, 2pi).
func Step(pose Pose, u Control, wheelbase float64) Pose {
	if math.Abs(u.Steering) < minSteeringAngle {
		return Pose{
			X:     pose.X + u.Speed*math.Cos(pose.Theta)*u.Dt,
			Y:     pose.Y + u.Speed*math.Sin(pose.Theta)*u.Dt,
			Theta: wrapTo2Pi(pose.Theta),
		}
	}
	beta := math.Atan(0.5 * math.Tan(u.Steering))
	dTheta := u.Speed / wheelbase * math.Sin(2*beta) * u.Dt
	// Signed turn radius of the rear axle path.
	radius := wheelbase / math.Sin(2*beta)
	return Pose{
		X:     pose.X + radius*(math.Sin(pose.Theta+dTheta)-math.Sin(pose.Theta)),
		Y:     pose.Y + radius*(math.Cos(pose.Theta)-math.Cos(pose.Theta+dTheta)),
		Theta: wrapTo2Pi(pose.Theta + dTheta),
	}
}

// Returns a given angle in the [0, 2pi) range.
func wrapTo2Pi(theta float64) float64 {
	return theta - 2*math.Pi*math.Floor(theta/(2*math.Pi))
}
