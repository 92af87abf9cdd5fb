package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/saaga0h/energy-twins/pkg/mqtt"
)

// QueryClient sends twin queries over MQTT and routes replies back to the
// waiting caller by request ID.
type QueryClient struct {
	mqtt   mqtt.Client
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]chan []byte
	summary []byte
	gotSum  chan struct{}
}

// NewQueryClient wraps a broker connection
func NewQueryClient(m mqtt.Client, logger *slog.Logger) *QueryClient {
	return &QueryClient{
		mqtt:    m,
		logger:  logger,
		pending: make(map[string]chan []byte),
		gotSum:  make(chan struct{}),
	}
}

// Start connects and subscribes to replies and the retained summary
func (c *QueryClient) Start(ctx context.Context) error {
	if err := c.mqtt.Connect(ctx); err != nil {
		return err
	}
	if err := c.mqtt.Subscribe(mqtt.TopicQueryResponses, 1, c.handleResponse); err != nil {
		return err
	}
	return c.mqtt.Subscribe(mqtt.TopicSummary, 1, c.handleSummary)
}

// Close disconnects from the broker
func (c *QueryClient) Close() {
	c.mqtt.Disconnect()
}

// Ask publishes query under a fresh request ID and waits for its reply
func (c *QueryClient) Ask(ctx context.Context, query map[string]interface{}) (map[string]interface{}, error) {
	id := uuid.NewString()
	reply := make(chan []byte, 1)

	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	payload, err := json.Marshal(map[string]interface{}{
		"request_id": id,
		"query":      query,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}
	if err := c.mqtt.Publish(mqtt.TopicQueryRequest, 1, false, payload); err != nil {
		return nil, err
	}
	c.logger.Debug("Published query", "request_id", id)

	select {
	case data := <-reply:
		return decodeObject(data)
	case <-ctx.Done():
		return nil, fmt.Errorf("no reply for request %s: %w", id, ctx.Err())
	}
}

// Summary waits for the retained dataset summary
func (c *QueryClient) Summary(ctx context.Context) (map[string]interface{}, error) {
	select {
	case <-c.gotSum:
	case <-ctx.Done():
		return nil, fmt.Errorf("no summary received: %w", ctx.Err())
	}

	c.mu.Lock()
	data := c.summary
	c.mu.Unlock()
	return decodeObject(data)
}

func (c *QueryClient) handleResponse(msg mqtt.Message) {
	id, ok := mqtt.RequestIDFromResponseTopic(msg.Topic())
	if !ok {
		return
	}

	c.mu.Lock()
	reply, waiting := c.pending[id]
	c.mu.Unlock()
	if !waiting {
		c.logger.Debug("Ignoring reply for unknown request", "request_id", id)
		return
	}

	select {
	case reply <- msg.Payload():
	default:
	}
}

func (c *QueryClient) handleSummary(msg mqtt.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	first := c.summary == nil
	c.summary = msg.Payload()
	if first {
		close(c.gotSum)
	}
}

func decodeObject(data []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	return out, nil
}
