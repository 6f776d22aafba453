package rosbag

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/viam-labs/laser-wanderer/wander"
)

func TestConfigEnsureValidate(t *testing.T) {
	cfg := Config{Path: "drive.bag"}
	cfg.ensure()
	test.That(t, cfg.Topic, test.ShouldEqual, "/car/scan")
	test.That(t, cfg.Rate, test.ShouldEqual, 1.0)
	test.That(t, cfg.validate(), test.ShouldBeNil)

	missing := Config{}
	missing.ensure()
	err := missing.validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "path is required")

	backwards := Config{Path: "drive.bag", Rate: -2}
	backwards.ensure()
	err = backwards.validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "rate")
}

func TestDecodeScanLine(t *testing.T) {
	line := []byte(`{
		"meta": {"secs": 1647166, "nsecs": 500000000},
		"data": {
			"angle_min": -3.141592653589793,
			"angle_max": 3.141592653589793,
			"angle_increment": 0.01,
			"time_increment": 0.0001,
			"scan_time": 0.1,
			"range_min": 0.15,
			"range_max": 12.0,
			"ranges": [1.5, "nan", null, 3.25, "inf"]
		}
	}`)

	scan, err := decodeScanLine(line)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scan.AngleMin, test.ShouldAlmostEqual, -math.Pi)
	test.That(t, scan.AngleIncrement, test.ShouldEqual, 0.01)
	test.That(t, scan.RangeMin, test.ShouldEqual, 0.15)
	test.That(t, scan.RangeMax, test.ShouldEqual, 12.0)
	test.That(t, scan.Stamp, test.ShouldResemble, time.Unix(1647166, 500000000))

	test.That(t, scan.Ranges, test.ShouldHaveLength, 5)
	test.That(t, scan.Ranges[0], test.ShouldEqual, 1.5)
	test.That(t, math.IsNaN(scan.Ranges[1]), test.ShouldBeTrue)
	test.That(t, math.IsNaN(scan.Ranges[2]), test.ShouldBeTrue)
	test.That(t, scan.Ranges[3], test.ShouldEqual, 3.25)
	test.That(t, math.IsInf(scan.Ranges[4], 1), test.ShouldBeTrue)

	_, err = decodeScanLine([]byte("not json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestToRange(t *testing.T) {
	test.That(t, toRange(2.5), test.ShouldEqual, 2.5)
	test.That(t, toRange("2.25"), test.ShouldEqual, 2.25)
	test.That(t, math.IsNaN(toRange("nan")), test.ShouldBeTrue)
	test.That(t, math.IsInf(toRange("inf"), 1), test.ShouldBeTrue)
	test.That(t, math.IsInf(toRange("-inf"), -1), test.ShouldBeTrue)
	test.That(t, math.IsNaN(toRange(nil)), test.ShouldBeTrue)
	test.That(t, math.IsNaN(toRange("twelve")), test.ShouldBeTrue)
}

func replaySource(rate float64, loop bool, stamps ...time.Duration) *Source {
	base := time.Unix(100, 0)
	scans := make([]*wander.Scan, len(stamps))
	for i, offset := range stamps {
		scans[i] = &wander.Scan{
			Ranges: []float64{float64(i)},
			Stamp:  base.Add(offset),
		}
	}
	return &Source{rate: rate, loop: loop, scans: scans}
}

func TestSourceReplayOrder(t *testing.T) {
	ctx := context.Background()
	src := replaySource(1000, false, 0, 10*time.Millisecond, 20*time.Millisecond)

	for i := 0; i < 3; i++ {
		scan, err := src.NextScan(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, scan.Ranges[0], test.ShouldEqual, float64(i))
	}
	_, err := src.NextScan(ctx)
	test.That(t, err, test.ShouldBeError, io.EOF)
	test.That(t, src.Close(ctx), test.ShouldBeNil)
}

func TestSourceLoop(t *testing.T) {
	ctx := context.Background()
	src := replaySource(1000, true, 0, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		scan, err := src.NextScan(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, scan.Ranges[0], test.ShouldEqual, float64(i%2))
	}
}

func TestSourcePacingCancel(t *testing.T) {
	src := replaySource(1, false, 0, 10*time.Second)

	_, err := src.NextScan(context.Background())
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = src.NextScan(ctx)
	test.That(t, err, test.ShouldBeError, context.DeadlineExceeded)
	test.That(t, time.Since(start), test.ShouldBeLessThan, 5*time.Second)
}

func TestNewSourceErrors(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	_, err := NewSource(Config{Path: filepath.Join(dir, "missing.bag"), Rate: 1, Topic: "/car/scan"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unable to open bag")

	garbled := filepath.Join(dir, "garbled.bag")
	test.That(t, os.WriteFile(garbled, []byte("not a bag\n"), 0o600), test.ShouldBeNil)
	_, err = NewSource(Config{Path: garbled, Rate: 1, Topic: "/car/scan"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unable to read bag")
}
