package record

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	isp "github.com/tocurd/go-avrisp"
	"github.com/tocurd/go-avrisp/programmer"
)

// MQTTConfig holds the broker connection and topic pattern.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // e.g. "avrprog/{station}/session"
	Station  string
}

// MQTTPublisher publishes one JSON record per session.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	station string
	logger  isp.Logger
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg MQTTConfig, logger isp.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = isp.NopLogger{}
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error("mqtt connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &MQTTPublisher{
		client:  client,
		topic:   formatTopic(cfg.Topic, cfg.Station),
		station: cfg.Station,
		logger:  logger,
	}, nil
}

// Record publishes the session record with QoS 1.
func (p *MQTTPublisher) Record(ctx context.Context, r programmer.SessionResult) error {
	payload, err := json.Marshal(FromResult(p.station, r))
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	token := p.client.Publish(p.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return fmt.Errorf("publish session %s: timeout", r.ID)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish session record: %w", err)
	}
	p.logger.Debug("published session record", "topic", p.topic, "session", r.ID)
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// formatTopic replaces the {station} placeholder.
func formatTopic(pattern, station string) string {
	return strings.ReplaceAll(pattern, "{station}", station)
}
