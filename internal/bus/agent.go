package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/saaga0h/energy-twins/internal/engine"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/internal/query"
	"github.com/saaga0h/energy-twins/pkg/mqtt"
)

// Request is the payload published on the request topic
type Request struct {
	RequestID string    `json:"request_id"`
	Query     query.Raw `json:"query"`
}

// Agent answers twin queries received over MQTT. Each request is answered on
// its own reply topic.
type Agent struct {
	mqtt   mqtt.Client
	engine *engine.Engine
	logger *slog.Logger

	mu  sync.RWMutex
	ctx context.Context
}

// NewAgent creates a query agent
func NewAgent(mqttClient mqtt.Client, e *engine.Engine, logger *slog.Logger) *Agent {
	return &Agent{
		mqtt:   mqttClient,
		engine: e,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Start connects, publishes the retained summary and subscribes to query
// requests. It blocks until ctx is cancelled.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	if err := a.PublishSummary(); err != nil {
		a.logger.Warn("Failed to publish summary", "error", err)
	}

	if err := a.mqtt.Subscribe(mqtt.TopicQueryRequest, 1, a.handleRequest); err != nil {
		return fmt.Errorf("failed to subscribe to query requests: %w", err)
	}

	a.logger.Info("Query agent started", "request_topic", mqtt.TopicQueryRequest)

	<-ctx.Done()
	a.logger.Info("Query agent stopping")
	return nil
}

// Stop disconnects from the broker
func (a *Agent) Stop() {
	a.logger.Info("Stopping query agent")
	a.mqtt.Disconnect()
}

// PublishSummary publishes the dataset summary as a retained message
func (a *Agent) PublishSummary() error {
	payload, err := json.Marshal(a.engine.GlobalSummary())
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return a.mqtt.Publish(mqtt.TopicSummary, 1, true, payload)
}

func (a *Agent) handleRequest(msg mqtt.Message) {
	// A retained request was answered when it was first published
	if msg.Retained() {
		a.logger.Debug("Ignoring retained query request", "topic", msg.Topic())
		return
	}

	payload := msg.Payload()
	a.logger.Debug("Received query request", "topic", msg.Topic(), "size", len(payload))

	var req Request
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		// Without a request ID there is no reply topic to report on
		a.logger.Error("Failed to parse query request", "error", err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if !validRequestID(req.RequestID) {
		a.logger.Warn("Rejecting query with malformed request ID", "request_id", req.RequestID)
		return
	}

	var resp *engine.Response
	if req.Query == nil {
		resp = &engine.Response{
			Message:   "query is required",
			RequestID: req.RequestID,
			Error:     &engine.ErrorInfo{Kind: failure.KindValidation, Field: "query"},
		}
	} else {
		resp = a.engine.FindTwins(engine.WithRequestID(a.context(), req.RequestID), req.Query)
	}

	if err := a.reply(resp); err != nil {
		a.logger.Error("Failed to publish query response", "request_id", req.RequestID, "error", err)
	}
}

func (a *Agent) reply(resp *engine.Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	topic := mqtt.QueryResponseTopic(resp.RequestID)
	if err := a.mqtt.Publish(topic, 1, false, payload); err != nil {
		return err
	}
	a.logger.Info("Published query response", "topic", topic, "success", resp.Success)
	return nil
}

func (a *Agent) context() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx
}

// validRequestID reports whether id can be used as a single reply topic level
func validRequestID(id string) bool {
	return len(id) <= 128 && !strings.ContainsAny(id, "/+#")
}
