package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/logger"
)

const (
	// mqttQoS is "at least once": an alert must reach the broker.
	mqttQoS = 1
	// mqttTimeout bounds connecting and publishing.
	mqttTimeout = 5 * time.Second
	// mqttDisconnectQuiesce is the time in milliseconds given to in-flight messages on Close.
	mqttDisconnectQuiesce = 250
)

// errMQTTTimeout is returned when the broker does not acknowledge in time.
var errMQTTTimeout = errors.New("mqtt operation timed out")

// MQTT publishes every alert as JSON to a broker topic.
type MQTT struct {
	client mqtt.Client
	topic  string
}

// NewMQTT connects to the broker described by cfg.
func NewMQTT(ctx context.Context, cfg config.MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}

	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(mqttTimeout)

	client := mqtt.NewClient(opts)

	if err := wait(client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	logger.InfoKV(ctx, "Publishing alerts to MQTT", "broker", cfg.Broker, "topic", cfg.Topic)

	return newMQTT(client, cfg.Topic), nil
}

func newMQTT(client mqtt.Client, topic string) *MQTT {
	return &MQTT{
		client: client,
		topic:  topic,
	}
}

// Present publishes the alerts of the frame.
func (m *MQTT) Present(_ context.Context, r *Result) error {
	if r == nil {
		return nil
	}

	for _, a := range r.Alerts {
		payload, err := marshalAlert(a)
		if err != nil {
			return writeError("mqtt", err)
		}

		if err = wait(m.client.Publish(m.topic, mqttQoS, false, payload)); err != nil {
			return writeError("mqtt", fmt.Errorf("publish to %s: %w", m.topic, err))
		}
	}

	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(mqttDisconnectQuiesce)

	return nil
}

// wait blocks until the token completes or mqttTimeout passes.
func wait(token mqtt.Token) error {
	if !token.WaitTimeout(mqttTimeout) {
		return errMQTTTimeout
	}

	return token.Error()
}
