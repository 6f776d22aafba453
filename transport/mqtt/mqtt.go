// Package mqtt moves scans, commands, and rollout previews over an MQTT
// broker, the transport the controller uses on a real vehicle.
package mqtt

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/viam-labs/laser-wanderer/wander"
	"github.com/viam-labs/laser-wanderer/wanderer"
)

func init() {
	wanderer.RegisterTransport("mqtt", wanderer.Registration{
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
		Preview: func(ctx context.Context, attrs wanderer.Attributes, logger golog.Logger) (wanderer.PreviewSink, error) {
			cfg, err := parseConfig(attrs)
			if err != nil {
				return nil, err
			}
			return NewPreviewSink(cfg, logger)
		},
	})
}

const (
	defaultClientID          = "wanderer"
	defaultScanTopic         = "car/scan"
	defaultCommandTopic      = "car/drive"
	defaultPreviewTopic      = "wanderer/rollouts"
	defaultConnectTimeoutSec = 10.0

	publishTimeout   = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds, passed to paho Disconnect
)

// Config points a transport role at a broker. The same attribute block works
// for all three roles; each dials its own connection with a role suffix on
// the client id.
type Config struct {
	Broker            string  `json:"broker"`
	ClientID          string  `json:"client_id"`
	Username          string  `json:"username"`
	Password          string  `json:"password"`
	ScanTopic         string  `json:"scan_topic"`
	CommandTopic      string  `json:"command_topic"`
	PreviewTopic      string  `json:"preview_topic"`
	QoS               int     `json:"qos"`
	ConnectTimeoutSec float64 `json:"connect_timeout_sec"`
}

func (cfg *Config) ensure() {
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID
	}
	if cfg.ScanTopic == "" {
		cfg.ScanTopic = defaultScanTopic
	}
	if cfg.CommandTopic == "" {
		cfg.CommandTopic = defaultCommandTopic
	}
	if cfg.PreviewTopic == "" {
		cfg.PreviewTopic = defaultPreviewTopic
	}
	if cfg.ConnectTimeoutSec <= 0 {
		cfg.ConnectTimeoutSec = defaultConnectTimeoutSec
	}
}

func (cfg *Config) validate() error {
	if cfg.Broker == "" {
		return errors.New("broker is required")
	}
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return errors.Errorf("qos must be 0, 1, or 2, got %d", cfg.QoS)
	}
	return nil
}

func (cfg *Config) connectTimeout() time.Duration {
	return time.Duration(cfg.ConnectTimeoutSec * float64(time.Second))
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

// dial connects a fresh client for one transport role.
func dial(cfg Config, role string) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID + "-" + role).
		SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.connectTimeout()) {
		return nil, errors.Errorf("timed out connecting to mqtt broker %q", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "unable to connect to mqtt broker %q", cfg.Broker)
	}
	return client, nil
}

// Source subscribes to the scan topic and hands decoded scans to the
// controller. Only the newest undelivered scan is kept; a fresh arrival
// displaces one nobody asked for yet.
type Source struct {
	logger golog.Logger
	client paho.Client
	topic  string
	scanCh chan *wander.Scan
	closed chan struct{}
	once   sync.Once
}

// NewSource dials the broker and subscribes to the scan topic.
func NewSource(cfg Config, logger golog.Logger) (*Source, error) {
	client, err := dial(cfg, "scan")
	if err != nil {
		return nil, err
	}
	s := &Source{
		logger: logger,
		client: client,
		topic:  cfg.ScanTopic,
		scanCh: make(chan *wander.Scan, 1),
		closed: make(chan struct{}),
	}
	token := client.Subscribe(cfg.ScanTopic, byte(cfg.QoS), s.handle)
	if !token.WaitTimeout(cfg.connectTimeout()) {
		client.Disconnect(disconnectQuiesce)
		return nil, errors.Errorf("timed out subscribing to %q", cfg.ScanTopic)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(disconnectQuiesce)
		return nil, errors.Wrapf(err, "unable to subscribe to %q", cfg.ScanTopic)
	}
	logger.Infow("mqtt scan source ready", "broker", cfg.Broker, "topic", cfg.ScanTopic)
	return s, nil
}

func (s *Source) handle(_ paho.Client, msg paho.Message) {
	var scan wander.Scan
	if err := json.Unmarshal(msg.Payload(), &scan); err != nil {
		s.logger.Errorw("scan payload decode failed", "topic", msg.Topic(), "error", err)
		return
	}
	select {
	case s.scanCh <- &scan:
	default:
		select {
		case <-s.scanCh:
		default:
		}
		select {
		case s.scanCh <- &scan:
		default:
		}
	}
}

// NextScan blocks until a scan arrives, the context ends, or the source is
// closed.
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
	case <-s.closed:
		return nil, io.EOF
	}
}

// Close unsubscribes and disconnects.
func (s *Source) Close(ctx context.Context) error {
	s.once.Do(func() {
		close(s.closed)
		s.client.Unsubscribe(s.topic).WaitTimeout(publishTimeout)
		s.client.Disconnect(disconnectQuiesce)
	})
	return nil
}

// CommandSink publishes one JSON drive command per decision cycle.
type CommandSink struct {
	client paho.Client
	topic  string
	qos    byte
}

// NewCommandSink dials the broker for command publishing.
func NewCommandSink(cfg Config, logger golog.Logger) (*CommandSink, error) {
	client, err := dial(cfg, "cmd")
	if err != nil {
		return nil, err
	}
	logger.Infow("mqtt command sink ready", "broker", cfg.Broker, "topic", cfg.CommandTopic)
	return &CommandSink{client: client, topic: cfg.CommandTopic, qos: byte(cfg.QoS)}, nil
}

// SendCommand publishes the command to the command topic.
func (c *CommandSink) SendCommand(ctx context.Context, cmd wanderer.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return errors.Wrap(err, "unable to encode command")
	}
	return publish(c.client, c.topic, c.qos, false, payload)
}

// Close disconnects the publisher.
func (c *CommandSink) Close(ctx context.Context) error {
	c.client.Disconnect(disconnectQuiesce)
	return nil
}

// posePayload is the wire shape of one rollout endpoint.
type posePayload struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// PreviewSink publishes rollout endpoints, retained so a viewer attaching
// later still sees them.
type PreviewSink struct {
	client paho.Client
	topic  string
	qos    byte
}

// NewPreviewSink dials the broker for preview publishing.
func NewPreviewSink(cfg Config, logger golog.Logger) (*PreviewSink, error) {
	client, err := dial(cfg, "viz")
	if err != nil {
		return nil, err
	}
	logger.Infow("mqtt preview sink ready", "broker", cfg.Broker, "topic", cfg.PreviewTopic)
	return &PreviewSink{client: client, topic: cfg.PreviewTopic, qos: byte(cfg.QoS)}, nil
}

// SendPreview publishes the endpoints as a retained JSON array.
func (p *PreviewSink) SendPreview(ctx context.Context, endpoints []wander.Pose) error {
	wire := make([]posePayload, len(endpoints))
	for i, pose := range endpoints {
		wire[i] = posePayload{X: pose.X, Y: pose.Y, Theta: pose.Theta}
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return errors.Wrap(err, "unable to encode preview")
	}
	return publish(p.client, p.topic, p.qos, true, payload)
}

// Close disconnects the publisher.
func (p *PreviewSink) Close(ctx context.Context) error {
	p.client.Disconnect(disconnectQuiesce)
	return nil
}

func publish(client paho.Client, topic string, qos byte, retained bool, payload []byte) error {
	token := client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("timed out publishing to %q", topic)
	}
	return errors.Wrapf(token.Error(), "unable to publish to %q", topic)
}
