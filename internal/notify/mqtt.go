package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"chargewatch/internal/models"
)

const publishTimeout = 5 * time.Second

// MQTTNotifier publishes closed sessions for external collaborators (tariff
// computation and the like). Best effort: a failed publish is the caller's
// to log, never to retry here.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

// NewMQTTNotifier connects to the broker and returns the notifier.
func NewMQTTNotifier(brokerURL, clientID, topic string, logger *zap.Logger) (*MQTTNotifier, error) {
	broker := brokerURL
	switch {
	case strings.HasPrefix(brokerURL, "mqtt://"):
		broker = strings.Replace(brokerURL, "mqtt://", "tcp://", 1)
	case strings.HasPrefix(brokerURL, "mqtts://"):
		broker = strings.Replace(brokerURL, "mqtts://", "ssl://", 1)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetKeepAlive(60 * time.Second).
		SetConnectTimeout(5 * time.Second).
		SetMaxReconnectInterval(10 * time.Second)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", broker))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("notify: mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("notify: mqtt connect: %w", err)
	}

	return &MQTTNotifier{client: client, topic: topic, logger: logger}, nil
}

// PublishClosedSession sends one closed session as JSON.
func (n *MQTTNotifier) PublishClosedSession(ctx context.Context, session models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("notify: marshal session: %w", err)
	}

	token := n.client.Publish(n.topic, 1, false, payload)

	deadline := publishTimeout
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline {
			deadline = remaining
		}
	}
	if !token.WaitTimeout(deadline) {
		return fmt.Errorf("notify: publish timed out")
	}
	return token.Error()
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
