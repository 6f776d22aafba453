package wander

import (
	"math"
	"time"
)

// Scan is one angular range-sensor sweep in the body frame. Ray i was taken
// at bearing AngleMin + i*AngleIncrement; its distance sample is Ranges[i] in
// meters. A sample that is NaN or infinite is a "no return" marker. When
// RangeMax > RangeMin the sensor's reporting bounds are known and samples
// outside them are also treated as no return.
type Scan struct {
	AngleMin       float64
	AngleIncrement float64
	RangeMin       float64
	RangeMax       float64
	Ranges         []float64
	Stamp          time.Time
}

// AngleMax returns the bearing of the last ray.
func (s *Scan) AngleMax() float64 {
	if len(s.Ranges) == 0 {
		return s.AngleMin
	}
	return s.AngleMin + s.AngleIncrement*float64(len(s.Ranges)-1)
}

// Bearing returns the bearing of ray i.
func (s *Scan) Bearing(i int) float64 {
	return s.AngleMin + s.AngleIncrement*float64(i)
}

// IndexFor returns the index of the ray nearest the given bearing. The result
// may fall outside [0, len(Ranges)) when the bearing is outside the sweep;
// callers must range-check it.
func (s *Scan) IndexFor(bearing float64) int {
	if s.AngleIncrement == 0 {
		return -1
	}
	return int(math.Round((bearing - s.AngleMin) / s.AngleIncrement))
}

// ValidRange reports whether ray i holds a usable distance sample: the index
// is in range, the sample is finite, and the sample is within the sensor's
// reporting bounds when those are set.
func (s *Scan) ValidRange(i int) bool {
	if i < 0 || i >= len(s.Ranges) {
		return false
	}
	r := s.Ranges[i]
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return false
	}
	if s.RangeMax > s.RangeMin && (r < s.RangeMin || r > s.RangeMax) {
		return false
	}
	return true
}
