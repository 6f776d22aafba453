package wander

import "math"

// MaxPenalty is added for each sampled ray that reports an obstacle nearer
// than the pose under evaluation.
const MaxPenalty = 10000.0

// StepCost scores one rollout pose against one scan. The base term is the
// steering magnitude. The pose's bearing is mapped to a ray index and that
// ray plus its two neighbors are sampled to absorb angular quantization
// noise; each sampled ray contributes MaxPenalty when it reports an obstacle
// between the sensor and the pose. Rays whose index falls outside the sweep
// or whose sample is no return contribute nothing. The penalty sum is
// averaged over the three sampling slots.
func StepCost(steering float64, pose Pose, scan *Scan, laserOffset float64) float64 {
	base := math.Abs(steering)
	if scan == nil || len(scan.Ranges) == 0 {
		return base
	}
	bearing := math.Atan2(pose.Y, pose.X)
	idx := scan.IndexFor(bearing)
	// Squared distance from the sensor origin to the pose, compared below
	// against the linear range sample less the sensor offset. For poses
	// beyond one meter the mismatch widens the margin, never narrows it.
	poseRangeSq := pose.X*pose.X + pose.Y*pose.Y
	margin := math.Abs(laserOffset)
	var penalty float64
	for k := idx - 1; k <= idx+1; k++ {
		if k < 0 || k >= len(scan.Ranges) {
			continue
		}
		if !scan.ValidRange(k) {
			continue
		}
		if poseRangeSq > scan.Ranges[k]-margin {
			penalty += MaxPenalty
		}
	}
	return base + penalty/3
}
