// Package rosbag replays laser scans from a recorded ROS bag, so the
// controller can be driven from logged data instead of a live vehicle.
package rosbag

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/edaniels/gobag/rosbag"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	goutils "go.viam.com/utils"

	"github.com/viam-labs/laser-wanderer/wander"
	"github.com/viam-labs/laser-wanderer/wanderer"
)

func init() {
	wanderer.RegisterTransport("rosbag", wanderer.Registration{
		Source: func(ctx context.Context, attrs wanderer.Attributes, logger golog.Logger) (wanderer.ScanSource, error) {
			var cfg Config
			if err := wanderer.DecodeAttributes(attrs, &cfg); err != nil {
				return nil, err
			}
			cfg.ensure()
			if err := cfg.validate(); err != nil {
				return nil, err
			}
			return NewSource(cfg, logger)
		},
	})
}

const defaultTopic = "/car/scan"

// Config selects a bag file and how to replay it. Rate is a playback speed
// multiplier over the recorded timestamps; one is real time.
type Config struct {
	Path  string  `json:"path"`
	Topic string  `json:"topic"`
	Rate  float64 `json:"rate"`
	Loop  bool    `json:"loop"`
}

func (cfg *Config) ensure() {
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	if cfg.Rate == 0 {
		cfg.Rate = 1
	}
}

func (cfg *Config) validate() error {
	if cfg.Path == "" {
		return errors.New("path is required")
	}
	if cfg.Rate < 0 {
		return errors.Errorf("rate must be positive, got %f", cfg.Rate)
	}
	return nil
}

// scanMessage is the JSON shape gobag produces for a sensor_msgs/LaserScan.
type scanMessage struct {
	Meta struct {
		Secs  int
		Nsecs int
	}
	Data struct {
		AngleMin       float64       `json:"angle_min"`
		AngleMax       float64       `json:"angle_max"`
		AngleIncrement float64       `json:"angle_increment"`
		TimeIncrement  float64       `json:"time_increment"`
		ScanTime       float64       `json:"scan_time"`
		RangeMin       float64       `json:"range_min"`
		RangeMax       float64       `json:"range_max"`
		Ranges         []interface{} `json:"ranges"`
	}
}

// Source replays the bag's scans in recorded order, pacing NextScan by the
// recorded inter-message gaps.
type Source struct {
	logger golog.Logger
	rate   float64
	loop   bool

	mu    sync.Mutex
	scans []*wander.Scan
	idx   int
	last  time.Time
}

// NewSource parses the whole bag up front and returns a replaying source.
func NewSource(cfg Config, logger golog.Logger) (*Source, error) {
	rb, err := readBag(cfg.Path)
	if err != nil {
		return nil, err
	}
	scans, skipped, err := scansFromBag(rb, cfg.Topic)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		logger.Warnw("skipped undecodable scan messages", "topic", cfg.Topic, "skipped", skipped)
	}
	logger.Infow("rosbag scan source ready",
		"path", cfg.Path,
		"topic", cfg.Topic,
		"scans", len(scans),
		"rate", cfg.Rate,
		"loop", cfg.Loop)
	return &Source{
		logger: logger,
		rate:   cfg.Rate,
		loop:   cfg.Loop,
		scans:  scans,
	}, nil
}

// NextScan returns the next recorded scan after waiting out the recorded gap
// scaled by the playback rate. A drained bag returns io.EOF, or rewinds when
// looping.
func (s *Source) NextScan(ctx context.Context) (*wander.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.scans) {
		if !s.loop || len(s.scans) == 0 {
			return nil, io.EOF
		}
		s.idx = 0
		s.last = time.Time{}
	}
	scan := s.scans[s.idx]
	s.idx++
	if !s.last.IsZero() {
		if gap := scan.Stamp.Sub(s.last); gap > 0 {
			if !goutils.SelectContextOrWait(ctx, time.Duration(float64(gap)/s.rate)) {
				return nil, ctx.Err()
			}
		}
	}
	s.last = scan.Stamp
	return scan, nil
}

// Close is a no-op; the bag is already fully in memory.
func (s *Source) Close(ctx context.Context) error {
	return nil
}

func readBag(path string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open bag %q", path)
	}
	defer goutils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()
	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to read bag %q", path)
	}
	return rb, nil
}

func scansFromBag(rb *rosbag.RosBag, topic string) ([]*wander.Scan, int, error) {
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { return t == topic },
		false,
	); err != nil {
		return nil, 0, errors.Wrap(err, "unable to parse bag topics")
	}

	buf := rb.TopicsAsJSON[topic]
	if buf == nil {
		return nil, 0, errors.Errorf("no messages on topic %q", topic)
	}

	var scans []*wander.Scan
	skipped := 0
	for {
		line, err := buf.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, err
		}
		scan, err := decodeScanLine(line)
		if err != nil {
			skipped++
			continue
		}
		scans = append(scans, scan)
	}
	if len(scans) == 0 {
		return nil, 0, errors.Errorf("no scan messages decoded on topic %q", topic)
	}
	return scans, skipped, nil
}

func decodeScanLine(line []byte) (*wander.Scan, error) {
	var msg scanMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}
	scan := &wander.Scan{
		AngleMin:       msg.Data.AngleMin,
		AngleIncrement: msg.Data.AngleIncrement,
		RangeMin:       msg.Data.RangeMin,
		RangeMax:       msg.Data.RangeMax,
		Ranges:         make([]float64, len(msg.Data.Ranges)),
		Stamp:          time.Unix(int64(msg.Meta.Secs), int64(msg.Meta.Nsecs)),
	}
	for i, v := range msg.Data.Ranges {
		scan.Ranges[i] = toRange(v)
	}
	return scan, nil
}

// toRange coerces one ranges element. Bags encode lost returns as the string
// "nan" or as null; both land as no-return NaN, as does anything else cast
// cannot make a float of.
func toRange(v interface{}) float64 {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return math.NaN()
	}
	return f
}
