package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/saaga0h/energy-twins/pkg/config"
)

// How long a publish may wait for the broker before failing
const publishTimeout = 10 * time.Second

// Retained payloads on TopicStatus
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type subscription struct {
	qos     byte
	handler MessageHandler
}

// mqttClient implements the Client interface using the Paho MQTT client.
// Sessions are clean, so subscriptions are replayed after every reconnect.
type mqttClient struct {
	client pahomqtt.Client
	cfg    *config.Config
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

// NewClient creates a new MQTT client with the given configuration
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	m := &mqttClient{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]subscription),
	}

	opts := newOptions(cfg)
	opts.OnConnect = m.onConnect
	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	}
	opts.OnReconnecting = func(c pahomqtt.Client, opts *pahomqtt.ClientOptions) {
		logger.Info("MQTT reconnecting...")
	}

	m.client = pahomqtt.NewClient(opts)
	return m
}

// newOptions builds broker options. Queries are independent, so handlers run
// concurrently instead of in arrival order.
func newOptions(cfg *config.Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTAddress())

	if cfg.MQTTClientID != "" {
		opts.SetClientID(cfg.MQTTClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ServiceName, uuid.NewString()[:8]))
	}

	if cfg.MQTTUser != "" {
		opts.SetUsername(cfg.MQTTUser)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(StatusTopic(cfg.ServiceName), StatusOffline, 1, true)

	return opts
}

// onConnect announces the service and restores subscriptions. Paho runs it
// in its own goroutine, so waiting on tokens here is safe.
func (m *mqttClient) onConnect(c pahomqtt.Client) {
	m.logger.Info("Connected to MQTT broker", "broker", m.cfg.MQTTAddress())

	status := c.Publish(StatusTopic(m.cfg.ServiceName), 1, true, StatusOnline)
	if status.WaitTimeout(publishTimeout) && status.Error() != nil {
		m.logger.Warn("Failed to publish online status", "error", status.Error())
	}

	m.mu.Lock()
	subs := make(map[string]subscription, len(m.subs))
	for topic, s := range m.subs {
		subs[topic] = s
	}
	m.mu.Unlock()

	for topic, s := range subs {
		if err := m.subscribe(topic, s); err != nil {
			m.logger.Error("Failed to restore subscription", "topic", topic, "error", err)
			continue
		}
		m.logger.Info("Restored subscription", "topic", topic)
	}
}

// Connect establishes a connection to the MQTT broker
func (m *mqttClient) Connect(ctx context.Context) error {
	m.logger.Info("Connecting to MQTT broker", "broker", m.cfg.MQTTAddress())

	token := m.client.Connect()

	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection timeout: %w", ctx.Err())
	}
}

// Disconnect marks the service offline and closes the connection
func (m *mqttClient) Disconnect() {
	m.logger.Info("Disconnecting from MQTT broker")
	if m.client.IsConnected() {
		status := m.client.Publish(StatusTopic(m.cfg.ServiceName), 1, true, StatusOffline)
		status.WaitTimeout(time.Second)
	}
	m.client.Disconnect(250)
}

// Subscribe subscribes to a topic and remembers it for reconnects
func (m *mqttClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	m.logger.Info("Subscribing to MQTT topic", "topic", topic, "qos", qos)

	s := subscription{qos: qos, handler: handler}
	if err := m.subscribe(topic, s); err != nil {
		return err
	}

	m.mu.Lock()
	m.subs[topic] = s
	m.mu.Unlock()

	m.logger.Info("Successfully subscribed to topic", "topic", topic)
	return nil
}

func (m *mqttClient) subscribe(topic string, s subscription) error {
	token := m.client.Subscribe(topic, s.qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		s.handler(&mqttMessage{msg: msg})
	})
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Publish publishes a message and waits for the broker to accept it
func (m *mqttClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := m.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("failed to publish to topic %s: timed out after %s", topic, publishTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	m.logger.Debug("Published message", "topic", topic, "size", len(payload))
	return nil
}

// IsConnected returns whether the client is currently connected
func (m *mqttClient) IsConnected() bool {
	return m.client.IsConnected()
}

// mqttMessage wraps a Paho MQTT message to implement our Message interface
type mqttMessage struct {
	msg pahomqtt.Message
}

func (m *mqttMessage) Topic() string {
	return m.msg.Topic()
}

func (m *mqttMessage) Payload() []byte {
	return m.msg.Payload()
}

func (m *mqttMessage) Retained() bool {
	return m.msg.Retained()
}
