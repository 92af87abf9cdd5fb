package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/energy-twins/pkg/mqtt"
	"github.com/saaga0h/energy-twins/pkg/postgres"
)

type fixedSize int

func (s fixedSize) Size() int { return int(s) }

type fakeMQTT struct {
	connected bool
}

func (f *fakeMQTT) Connect(context.Context) error                     { return nil }
func (f *fakeMQTT) Disconnect()                                       {}
func (f *fakeMQTT) Subscribe(string, byte, mqtt.MessageHandler) error { return nil }
func (f *fakeMQTT) Publish(string, byte, bool, []byte) error          { return nil }
func (f *fakeMQTT) IsConnected() bool                                 { return f.connected }

type fakeRedis struct {
	pingErr error
}

func (f *fakeRedis) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (f *fakeRedis) Get(context.Context, string) (string, error)                   { return "", nil }
func (f *fakeRedis) Ping(context.Context) error                                    { return f.pingErr }
func (f *fakeRedis) Close() error                                                  { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, h http.HandlerFunc) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, resp
}

func TestHandlerFunc(t *testing.T) {
	code, resp := serve(t, NewChecker(fixedSize(3), nil, nil, testLogger()).HandlerFunc())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Buildings)
	assert.Nil(t, resp.Services)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestHandlerFuncEmptyIndex(t *testing.T) {
	code, resp := serve(t, NewChecker(nil, nil, nil, testLogger()).HandlerFunc())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", resp.Status)
}

func TestDetailedHandlerFunc(t *testing.T) {
	tests := []struct {
		name       string
		mqtt       mqtt.Client
		redis      *fakeRedis
		size       int
		wantCode   int
		wantStatus string
		wantMQTT   string
		wantRedis  string
	}{
		{"all disabled", nil, nil, 5, http.StatusOK, "healthy", StatusDisabled, StatusDisabled},
		{"all connected", &fakeMQTT{connected: true}, &fakeRedis{}, 5, http.StatusOK, "healthy", StatusConnected, StatusConnected},
		{"mqtt down", &fakeMQTT{}, &fakeRedis{}, 5, http.StatusServiceUnavailable, "degraded", StatusDisconnected, StatusConnected},
		{"redis down", nil, &fakeRedis{pingErr: errors.New("refused")}, 5, http.StatusServiceUnavailable, "degraded", StatusDisabled, StatusDisconnected},
		{"empty index", &fakeMQTT{connected: true}, nil, 0, http.StatusServiceUnavailable, "unavailable", StatusConnected, StatusDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &Checker{index: fixedSize(tt.size), mqtt: tt.mqtt, logger: testLogger()}
			if tt.redis != nil {
				checker.redis = tt.redis
			}

			code, resp := serve(t, checker.DetailedHandlerFunc())
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.size, resp.Buildings)
			require.NotNil(t, resp.Services)
			assert.Equal(t, tt.wantMQTT, resp.Services.MQTT)
			assert.Equal(t, tt.wantRedis, resp.Services.Redis)
			assert.Equal(t, StatusDisabled, resp.Services.Postgres)
			assert.Nil(t, resp.Postgres)
		})
	}
}

type fakePostgres struct {
	status *postgres.HealthStatus
	table  string
}

func (f *fakePostgres) Connect(context.Context) error { return nil }
func (f *fakePostgres) Disconnect() error             { return nil }
func (f *fakePostgres) Exec(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (f *fakePostgres) Query(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (f *fakePostgres) Count(context.Context, string, ...interface{}) (int64, error) {
	return f.status.Rows, nil
}
func (f *fakePostgres) Transaction(context.Context, func(*sql.Tx) error) error { return nil }
func (f *fakePostgres) HealthCheck(_ context.Context, table string) (*postgres.HealthStatus, error) {
	f.table = table
	return f.status, nil
}

func TestDetailedHandlerFuncPostgres(t *testing.T) {
	pg := &fakePostgres{status: &postgres.HealthStatus{Connected: true, Database: "energy_twins", Table: "building_vectors", Rows: 42}}
	checker := NewChecker(fixedSize(42), nil, nil, testLogger()).WithPostgres(pg, "building_vectors")

	code, resp := serve(t, checker.DetailedHandlerFunc())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "building_vectors", pg.table)
	assert.Equal(t, StatusConnected, resp.Services.Postgres)
	require.NotNil(t, resp.Postgres)
	assert.Equal(t, int64(42), resp.Postgres.Rows)

	pg.status = &postgres.HealthStatus{Error: "ping failed: refused"}
	code, resp = serve(t, checker.DetailedHandlerFunc())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, StatusDisconnected, resp.Services.Postgres)
}
