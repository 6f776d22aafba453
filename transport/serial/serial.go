// Package serial reads scans from and writes drive commands to serial
// devices speaking newline-delimited JSON, the framing the vehicle's
// microcontrollers use.
package serial

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goserial "go.bug.st/serial"
	goutils "go.viam.com/utils"

	"github.com/viam-labs/laser-wanderer/wander"
	"github.com/viam-labs/laser-wanderer/wanderer"
)

func init() {
	wanderer.RegisterTransport("serial", wanderer.Registration{
		Source: func(ctx context.Context, attrs wanderer.Attributes, logger golog.Logger) (wanderer.ScanSource, error) {
			cfg, err := parseConfig(attrs)
			if err != nil {
				return nil, err
			}
			return NewSource(cfg, logger)
		},
		Command: func(ctx context.Context, attrs wanderer.Attributes, logger golog.Logger) (wanderer.CommandSink, error) {
			cfg, err := parseConfig(attrs)
			if err != nil {
				return nil, err
			}
			return NewCommandSink(cfg, logger)
		},
	})
}

const (
	defaultBaudRate = 115200

	// maxLineBytes bounds one JSON line; a dense scan runs tens of
	// kilobytes.
	maxLineBytes = 1 << 20
)

// Config names a serial device. The same model serves both roles, each on
// its own port.
type Config struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
}

func (cfg *Config) ensure() {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
}

func (cfg *Config) validate() error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.BaudRate < 0 {
		return errors.Errorf("baud_rate must be positive, got %d", cfg.BaudRate)
	}
	return nil
}

func parseConfig(attrs wanderer.Attributes) (Config, error) {
	var cfg Config
	if err := wanderer.DecodeAttributes(attrs, &cfg); err != nil {
		return Config{}, err
	}
	cfg.ensure()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func openPort(cfg Config) (io.ReadWriteCloser, error) {
	port, err := goserial.Open(cfg.Port, &goserial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open serial port %q", cfg.Port)
	}
	return port, nil
}

// Source reads one JSON scan per line off a serial port. Only the newest
// undelivered scan is kept.
type Source struct {
	logger  golog.Logger
	port    io.ReadCloser
	scanCh  chan *wander.Scan
	closed  chan struct{}
	drained chan struct{}
	once    sync.Once
}

// NewSource opens the configured port and starts reading scans.
func NewSource(cfg Config, logger golog.Logger) (*Source, error) {
	port, err := openPort(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infow("serial scan source ready", "port", cfg.Port, "baud", cfg.BaudRate)
	return newSourceFromPort(port, logger), nil
}

// newSourceFromPort runs a source over any line-oriented reader; tests hand
// it a pipe.
func newSourceFromPort(port io.ReadCloser, logger golog.Logger) *Source {
	s := &Source{
		logger:  logger,
		port:    port,
		scanCh:  make(chan *wander.Scan, 1),
		closed:  make(chan struct{}),
		drained: make(chan struct{}),
	}
	goutils.PanicCapturingGo(s.readLoop)
	return s
}

func (s *Source) readLoop() {
	defer close(s.drained)
	scanner := bufio.NewScanner(s.port)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var scan wander.Scan
		if err := json.Unmarshal(line, &scan); err != nil {
			s.logger.Errorw("scan line decode failed", "error", err)
			continue
		}
		if scan.Stamp.IsZero() {
			scan.Stamp = time.Now()
		}
		s.offer(&scan)
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-s.closed:
		default:
			s.logger.Errorw("serial read failed", "error", err)
		}
	}
}

func (s *Source) offer(scan *wander.Scan) {
	select {
	case s.scanCh <- scan:
	default:
		select {
		case <-s.scanCh:
		default:
		}
		select {
		case s.scanCh <- scan:
		default:
		}
	}
}

// NextScan blocks until a scan arrives, the context ends, or the port stops
// producing lines.
func (s *Source) NextScan(ctx context.Context) (*wander.Scan, error) {
	select {
	case scan := <-s.scanCh:
		return scan, nil
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case scan := <-s.scanCh:
		return scan, nil
	case <-s.drained:
		return nil, io.EOF
	}
}

// Close closes the port, which also unblocks the read loop.
func (s *Source) Close(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.port.Close()
	})
	return err
}

// CommandSink writes one JSON command per line to a serial port.
type CommandSink struct {
	mu   sync.Mutex
	port io.WriteCloser
}

// NewCommandSink opens the configured port for command writes.
func NewCommandSink(cfg Config, logger golog.Logger) (*CommandSink, error) {
	port, err := openPort(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infow("serial command sink ready", "port", cfg.Port, "baud", cfg.BaudRate)
	return newCommandSinkFromPort(port), nil
}

func newCommandSinkFromPort(port io.WriteCloser) *CommandSink {
	return &CommandSink{port: port}
}

// SendCommand writes the command as one JSON line.
func (c *CommandSink) SendCommand(ctx context.Context, cmd wanderer.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return errors.Wrap(err, "unable to encode command")
	}
	payload = append(payload, '\n')
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.port.Write(payload)
	return errors.Wrap(err, "unable to write command")
}

// Close closes the port.
func (c *CommandSink) Close(ctx context.Context) error {
	return c.port.Close()
}
