package wander

import (
	"encoding/json"
	"math"
	"time"
)

// scanJSON is the wire form of a Scan. JSON has no NaN or infinity, so no
// return markers travel as null and are restored to NaN on decode.
type scanJSON struct {
	AngleMin       float64    `json:"angle_min"`
	AngleIncrement float64    `json:"angle_increment"`
	RangeMin       float64    `json:"range_min"`
	RangeMax       float64    `json:"range_max"`
	Ranges         []*float64 `json:"ranges"`
	Stamp          time.Time  `json:"stamp"`
}

// MarshalJSON encodes the scan with non-finite samples as null.
func (s Scan) MarshalJSON() ([]byte, error) {
	wire := scanJSON{
		AngleMin:       s.AngleMin,
		AngleIncrement: s.AngleIncrement,
		RangeMin:       s.RangeMin,
		RangeMax:       s.RangeMax,
		Ranges:         make([]*float64, len(s.Ranges)),
		Stamp:          s.Stamp,
	}
	for i, r := range s.Ranges {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		v := r
		wire.Ranges[i] = &v
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the scan, restoring null samples to NaN.
func (s *Scan) UnmarshalJSON(data []byte) error {
	var wire scanJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	s.AngleMin = wire.AngleMin
	s.AngleIncrement = wire.AngleIncrement
	s.RangeMin = wire.RangeMin
	s.RangeMax = wire.RangeMax
	s.Stamp = wire.Stamp
	s.Ranges = make([]float64, len(wire.Ranges))
	for i, r := range wire.Ranges {
		if r == nil {
			s.Ranges[i] = math.NaN()
			continue
		}
		s.Ranges[i] = *r
	}
	return nil
}
