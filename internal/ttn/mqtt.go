package ttn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultBuffer          = 64
	defaultQoS             = 1
	disconnectQuiesceMilli = 250
)

// ErrNotConnected is returned when the subscriber is used before Connect.
var ErrNotConnected = errors.New("mqtt subscriber not connected")

// MQTTConfig holds the TTN MQTT integration settings
type MQTTConfig struct {
	Broker   string // e.g. tls://eu1.cloud.thethings.network:8883
	ClientID string
	Username string // <application-id>@ttn
	Password string // API key
	Topic    string // e.g. v3/<application-id>@ttn/devices/+/up
	Buffer   int
}

// WithSubscriberLogger sets the logger for the subscriber
func WithSubscriberLogger(logger *slog.Logger) func(s *Subscriber) {
	return func(s *Subscriber) {
		s.logger = logger.With(slog.String("component", "ttn-mqtt"))
	}
}

// WithSubscriberDecoder sets the uplink decoder
func WithSubscriberDecoder(d Decoder) func(s *Subscriber) {
	return func(s *Subscriber) {
		s.decoder = d
	}
}

// Subscriber keeps the most recent uplinks delivered by the MQTT integration.
type Subscriber struct {
	config  MQTTConfig
	decoder Decoder
	logger  *slog.Logger

	client MQTT.Client

	mu      sync.Mutex
	uplinks []Uplink
}

// NewSubscriber creates a subscriber. Connect must be called before Latest.
func NewSubscriber(config MQTTConfig, options ...func(s *Subscriber)) *Subscriber {
	if config.Buffer <= 0 {
		config.Buffer = defaultBuffer
	}

	s := Subscriber{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Connect connects to the broker and subscribes to the uplink topic.
func (s *Subscriber) Connect(ctx context.Context) error {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(s.config.Broker)
	opts.SetClientID(s.config.ClientID)
	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
		opts.SetPassword(s.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		s.logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
	})

	s.client = MQTT.NewClient(opts)

	token := s.client.Connect()
	select {
	case <-ctx.Done():
		s.client.Disconnect(disconnectQuiesceMilli)
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to broker '%s': %w", s.config.Broker, err)
	}

	s.logger.Info("mqtt client connected", slog.String("broker", s.config.Broker))
	return nil
}

// onConnect (re)subscribes after every successful connection.
func (s *Subscriber) onConnect(client MQTT.Client) {
	token := client.Subscribe(s.config.Topic, defaultQoS, func(_ MQTT.Client, msg MQTT.Message) {
		s.handle(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		s.logger.Error("subscribing", slog.String("topic", s.config.Topic), slog.String("error", token.Error().Error()))
		return
	}
	s.logger.Info("subscribed", slog.String("topic", s.config.Topic))
}

func (s *Subscriber) handle(payload []byte) {
	u, ok, err := s.decoder.Decode(payload)
	if err != nil {
		s.logger.Warn("dropping malformed uplink", slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.uplinks = append(s.uplinks, u)
	if over := len(s.uplinks) - s.config.Buffer; over > 0 {
		s.uplinks = append(s.uplinks[:0], s.uplinks[over:]...)
	}
}

// Latest returns up to n most recently received uplinks, oldest first.
func (s *Subscriber) Latest(ctx context.Context, n int) ([]Uplink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(len(s.uplinks)-n, 0)
	return append([]Uplink(nil), s.uplinks[start:]...), nil
}

// Close disconnects from the broker.
func (s *Subscriber) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesceMilli)
		s.logger.Info("mqtt client disconnected")
	}
	return nil
}
