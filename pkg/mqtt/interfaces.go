package mqtt

import "context"

// Client is the broker connection used by the query agent and the e2e runner
type Client interface {
	// Connect establishes a connection to the MQTT broker
	Connect(ctx context.Context) error

	// Disconnect closes the connection to the MQTT broker
	Disconnect()

	// Subscribe registers handler for topic. Handlers may run concurrently.
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Publish publishes a message to a topic
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// IsConnected returns whether the client is currently connected
	IsConnected() bool
}

// MessageHandler is a callback function for handling incoming MQTT messages
type MessageHandler func(Message)

// Message is a received MQTT message
type Message interface {
	Topic() string
	Payload() []byte

	// Retained reports whether the broker replayed a stored message on
	// subscribe rather than forwarding a live publish
	Retained() bool
}
