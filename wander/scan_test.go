package wander

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestScanIndexFor(t *testing.T) {
	scan := &Scan{AngleMin: -math.Pi, AngleIncrement: 0.01, Ranges: make([]float64, 629)}

	test.That(t, scan.IndexFor(-math.Pi), test.ShouldEqual, 0)
	test.That(t, scan.IndexFor(-math.Pi+0.0149), test.ShouldEqual, 1)
	test.That(t, scan.IndexFor(-math.Pi+0.0151), test.ShouldEqual, 2)
	test.That(t, scan.IndexFor(0), test.ShouldEqual, 314)

	// Bearings outside the sweep quantize to out-of-range indices rather
	// than clamping.
	test.That(t, scan.IndexFor(-math.Pi-0.1), test.ShouldBeLessThan, 0)
	test.That(t, scan.IndexFor(math.Pi+0.2), test.ShouldBeGreaterThan, 628)

	degenerate := &Scan{AngleMin: 0, AngleIncrement: 0, Ranges: make([]float64, 10)}
	test.That(t, degenerate.IndexFor(0.5), test.ShouldEqual, -1)
}

func TestScanBearings(t *testing.T) {
	scan := &Scan{AngleMin: -1.5, AngleIncrement: 0.5, Ranges: make([]float64, 7)}
	test.That(t, scan.Bearing(0), test.ShouldEqual, -1.5)
	test.That(t, scan.Bearing(6), test.ShouldAlmostEqual, 1.5, 1e-12)
	test.That(t, scan.AngleMax(), test.ShouldAlmostEqual, 1.5, 1e-12)

	empty := &Scan{AngleMin: 0.25}
	test.That(t, empty.AngleMax(), test.ShouldEqual, 0.25)
}

func TestScanValidRange(t *testing.T) {
	scan := &Scan{
		AngleMin:       0,
		AngleIncrement: 0.1,
		RangeMin:       0.1,
		RangeMax:       10,
		Ranges:         []float64{5, math.NaN(), math.Inf(1), math.Inf(-1), 0.05, 10.5, 0.1, 10},
	}

	test.That(t, scan.ValidRange(0), test.ShouldBeTrue)
	test.That(t, scan.ValidRange(1), test.ShouldBeFalse)
	test.That(t, scan.ValidRange(2), test.ShouldBeFalse)
	test.That(t, scan.ValidRange(3), test.ShouldBeFalse)
	test.That(t, scan.ValidRange(4), test.ShouldBeFalse)
	test.That(t, scan.ValidRange(5), test.ShouldBeFalse)
	test.That(t, scan.ValidRange(6), test.ShouldBeTrue)
	test.That(t, scan.ValidRange(7), test.ShouldBeTrue)

	test.That(t, scan.ValidRange(-1), test.ShouldBeFalse)
	test.That(t, scan.ValidRange(8), test.ShouldBeFalse)

	// Without reporting bounds any finite sample is usable.
	unbounded := &Scan{Ranges: []float64{0.01, 1000}}
	test.That(t, unbounded.ValidRange(0), test.ShouldBeTrue)
	test.That(t, unbounded.ValidRange(1), test.ShouldBeTrue)
}

func TestScanJSONRoundTrip(t *testing.T) {
	scan := Scan{
		AngleMin:       -2.35,
		AngleIncrement: 0.004,
		RangeMin:       0.02,
		RangeMax:       30,
		Ranges:         []float64{1.5, math.NaN(), math.Inf(1), 3.25},
		Stamp:          time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC),
	}

	data, err := json.Marshal(scan)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Count(string(data), "null"), test.ShouldEqual, 2)

	var decoded Scan
	test.That(t, json.Unmarshal(data, &decoded), test.ShouldBeNil)
	test.That(t, decoded.AngleMin, test.ShouldEqual, scan.AngleMin)
	test.That(t, decoded.AngleIncrement, test.ShouldEqual, scan.AngleIncrement)
	test.That(t, decoded.RangeMin, test.ShouldEqual, scan.RangeMin)
	test.That(t, decoded.RangeMax, test.ShouldEqual, scan.RangeMax)
	test.That(t, decoded.Stamp.Equal(scan.Stamp), test.ShouldBeTrue)
	test.That(t, decoded.Ranges, test.ShouldHaveLength, 4)
	test.That(t, decoded.Ranges[0], test.ShouldEqual, 1.5)
	test.That(t, math.IsNaN(decoded.Ranges[1]), test.ShouldBeTrue)
	test.That(t, math.IsNaN(decoded.Ranges[2]), test.ShouldBeTrue)
	test.That(t, decoded.Ranges[3], test.ShouldEqual, 3.25)
}

func TestScanUnmarshalNull(t *testing.T) {
	raw := `{"angle_min":-1,"angle_increment":0.5,"ranges":[null,2.5,null]}`
	var scan Scan
	test.That(t, json.Unmarshal([]byte(raw), &scan), test.ShouldBeNil)
	test.That(t, math.IsNaN(scan.Ranges[0]), test.ShouldBeTrue)
	test.That(t, scan.Ranges[1], test.ShouldEqual, 2.5)
	test.That(t, math.IsNaN(scan.Ranges[2]), test.ShouldBeTrue)
	test.That(t, scan.ValidRange(0), test.ShouldBeFalse)
	test.That(t, scan.ValidRange(1), test.ShouldBeTrue)
}
