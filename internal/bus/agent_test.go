package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/engine"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/internal/index"
	"github.com/saaga0h/energy-twins/pkg/mqtt"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeMQTT records publishes and lets tests deliver messages to handlers
type fakeMQTT struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []published
	connected bool
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeMQTT) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: topic, retained: retained, payload: payload})
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTT) deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	h(&fakeMessage{topic: topic, payload: payload})
}

func (f *fakeMQTT) last() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

func (f *fakeMQTT) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }
func (m *fakeMessage) Retained() bool  { return m.retained }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	var records []building.Record
	for i, monthly := range []float64{500, 1000, 1500} {
		records = append(records, building.Record{
			ID:           int64(i + 1),
			City:         "Denver",
			State:        "CO",
			FloorArea:    1800,
			Bedrooms:     3,
			Occupants:    2,
			BuildingType: building.SingleFamilyDetached,
			HeatingFuel:  building.NaturalGas,
			CoolingType:  building.CentralAC,
			ClimateZone:  "5B",
			AnnualKWh:    monthly * 12,
		})
	}
	idx, err := index.Build(records, testLogger())
	require.NoError(t, err)
	e, err := engine.New(idx, engine.DefaultOptions(), nil, testLogger())
	require.NoError(t, err)
	return e
}

// startAgent runs the agent until the test ends and waits for its subscription
func startAgent(t *testing.T) *fakeMQTT {
	t.Helper()
	client := newFakeMQTT()
	agent := NewAgent(client, newTestEngine(t), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		agent.Stop()
	})

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.handlers[mqtt.TopicQueryRequest] != nil
	}, time.Second, 5*time.Millisecond)
	return client
}

func TestAgentPublishesRetainedSummary(t *testing.T) {
	client := startAgent(t)

	client.mu.Lock()
	first := client.published[0]
	client.mu.Unlock()

	assert.Equal(t, mqtt.TopicSummary, first.topic)
	assert.True(t, first.retained)
	assert.JSONEq(t, `{"total_homes":3,"avg_energy":1000,"cities":1}`, string(first.payload))
}

func TestAgentAnswersQuery(t *testing.T) {
	client := startAgent(t)

	req := `{"request_id":"req-42","query":{"home_size":1800,"bedrooms":3,"occupants":2,` +
		`"building_type":"single_family_detached","heating_fuel":"natural_gas","cooling_type":"central_ac",` +
		`"climate_zone":"5B","monthly_usage":1000,"k_value":3}}`
	client.deliver(mqtt.TopicQueryRequest, []byte(req))

	reply := client.last()
	assert.Equal(t, mqtt.QueryResponseTopic("req-42"), reply.topic)
	assert.False(t, reply.retained)

	var resp engine.Response
	require.NoError(t, json.Unmarshal(reply.payload, &resp))
	assert.True(t, resp.Success, resp.Message)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.Len(t, resp.Twins, 3)
	assert.Equal(t, "typical", resp.Insights.UsageClass)
}

func TestAgentReportsQueryErrors(t *testing.T) {
	client := startAgent(t)

	client.deliver(mqtt.TopicQueryRequest, []byte(`{"request_id":"bad-k","query":{"home_size":1800,"building_type":"mobile_home","heating_fuel":"propane","cooling_type":"none","climate_zone":"5B","k_value":0}}`))

	reply := client.last()
	assert.Equal(t, mqtt.QueryResponseTopic("bad-k"), reply.topic)

	var resp engine.Response
	require.NoError(t, json.Unmarshal(reply.payload, &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, failure.KindInvalidQuery, resp.Error.Kind)
	assert.Equal(t, "bad-k", resp.RequestID)

	client.deliver(mqtt.TopicQueryRequest, []byte(`{"request_id":"no-query"}`))
	reply = client.last()
	require.NoError(t, json.Unmarshal(reply.payload, &resp))
	assert.Equal(t, failure.KindValidation, resp.Error.Kind)
}

func TestAgentGeneratesRequestID(t *testing.T) {
	client := startAgent(t)

	client.deliver(mqtt.TopicQueryRequest, []byte(`{"query":{"home_size":1800,"building_type":"single_family_detached","heating_fuel":"natural_gas","cooling_type":"central_ac","climate_zone":"5B"}}`))

	reply := client.last()
	id, ok := mqtt.RequestIDFromResponseTopic(reply.topic)
	require.True(t, ok)
	assert.NotEmpty(t, id)
}

func TestAgentDropsUnanswerableRequests(t *testing.T) {
	client := startAgent(t)
	before := client.count()

	client.deliver(mqtt.TopicQueryRequest, []byte(`not json`))
	client.deliver(mqtt.TopicQueryRequest, []byte(`{"request_id":"a/b","query":{}}`))
	client.deliver(mqtt.TopicQueryRequest, []byte(`{"request_id":"#","query":{}}`))

	assert.Equal(t, before, client.count())
}

func TestAgentIgnoresRetainedRequests(t *testing.T) {
	client := startAgent(t)
	before := client.count()

	client.mu.Lock()
	h := client.handlers[mqtt.TopicQueryRequest]
	client.mu.Unlock()
	h(&fakeMessage{
		topic:    mqtt.TopicQueryRequest,
		payload:  []byte(`{"request_id":"stale","query":{"home_size":1800,"building_type":"mobile_home","heating_fuel":"propane","cooling_type":"none","climate_zone":"5B"}}`),
		retained: true,
	})

	assert.Equal(t, before, client.count())
}
