package serial

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/viam-labs/laser-wanderer/wander"
	"github.com/viam-labs/laser-wanderer/wanderer"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(wanderer.Attributes{"port": "/dev/ttyUSB0"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Port, test.ShouldEqual, "/dev/ttyUSB0")
	test.That(t, cfg.BaudRate, test.ShouldEqual, 115200)

	_, err = parseConfig(wanderer.Attributes{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "port is required")

	_, err = parseConfig(wanderer.Attributes{"port": "/dev/ttyUSB0", "baud_rate": -9600})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "baud_rate")
}

func TestSourceReadsScans(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pr, pw := io.Pipe()
	src := newSourceFromPort(pr, logger)
	defer src.Close(context.Background())

	payload, err := json.Marshal(&wander.Scan{
		AngleMin:       -1.5,
		AngleIncrement: 0.01,
		Ranges:         []float64{2, 3, 4},
	})
	test.That(t, err, test.ShouldBeNil)
	go func() {
		//nolint:errcheck
		pw.Write(append(payload, '\n'))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	scan, err := src.NextScan(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scan.AngleMin, test.ShouldEqual, -1.5)
	test.That(t, scan.Ranges, test.ShouldResemble, []float64{2, 3, 4})
	// The stamp is filled on receipt when the device sends none.
	test.That(t, scan.Stamp.IsZero(), test.ShouldBeFalse)
}

func TestSourceSkipsJunkLines(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pr, pw := io.Pipe()
	src := newSourceFromPort(pr, logger)
	defer src.Close(context.Background())

	payload, err := json.Marshal(&wander.Scan{AngleMin: -2, Ranges: []float64{7}})
	test.That(t, err, test.ShouldBeNil)
	stream := append([]byte("not json\n\n"), payload...)
	stream = append(stream, '\n')
	go func() {
		//nolint:errcheck
		pw.Write(stream)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	scan, err := src.NextScan(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scan.AngleMin, test.ShouldEqual, -2.0)
}

func TestSourceDrained(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pr, pw := io.Pipe()
	src := newSourceFromPort(pr, logger)
	defer src.Close(context.Background())

	payload, err := json.Marshal(&wander.Scan{AngleMin: -3, Ranges: []float64{1}})
	test.That(t, err, test.ShouldBeNil)
	go func() {
		//nolint:errcheck
		pw.Write(append(payload, '\n'))
		pw.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	scan, err := src.NextScan(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scan.AngleMin, test.ShouldEqual, -3.0)

	_, err = src.NextScan(ctx)
	test.That(t, err, test.ShouldBeError, io.EOF)
}

func TestSourceClose(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pr, _ := io.Pipe()
	src := newSourceFromPort(pr, logger)

	test.That(t, src.Close(context.Background()), test.ShouldBeNil)
	test.That(t, src.Close(context.Background()), test.ShouldBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := src.NextScan(ctx)
	test.That(t, err, test.ShouldBeError, io.EOF)
}

type bufCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufCloser) Close() error {
	b.closed = true
	return nil
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) { return 0, errors.New("device gone") }
func (failWriter) Close() error                { return nil }

func TestCommandSink(t *testing.T) {
	ctx := context.Background()
	buf := &bufCloser{}
	sink := newCommandSinkFromPort(buf)

	test.That(t, sink.SendCommand(ctx, wanderer.Command{Steering: 0.113, Speed: 1}), test.ShouldBeNil)
	test.That(t, sink.SendCommand(ctx, wanderer.Command{Steering: -0.34, Speed: 1}), test.ShouldBeNil)

	scanner := bufio.NewScanner(&buf.Buffer)
	var got []wanderer.Command
	for scanner.Scan() {
		var cmd wanderer.Command
		test.That(t, json.Unmarshal(scanner.Bytes(), &cmd), test.ShouldBeNil)
		got = append(got, cmd)
	}
	test.That(t, got, test.ShouldResemble, []wanderer.Command{
		{Steering: 0.113, Speed: 1},
		{Steering: -0.34, Speed: 1},
	})

	test.That(t, sink.Close(ctx), test.ShouldBeNil)
	test.That(t, buf.closed, test.ShouldBeTrue)
}

func TestCommandSinkWriteError(t *testing.T) {
	sink := newCommandSinkFromPort(failWriter{})
	err := sink.SendCommand(context.Background(), wanderer.Command{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unable to write command")
}
