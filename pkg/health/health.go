package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/saaga0h/energy-twins/pkg/mqtt"
	"github.com/saaga0h/energy-twins/pkg/postgres"
	"github.com/saaga0h/energy-twins/pkg/redis"
)

// Status values reported for a dependency
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusDisabled     = "disabled"
)

// Sizer reports how many reference buildings are loaded
type Sizer interface {
	Size() int
}

// Checker provides health check functionality for the service
type Checker struct {
	index  Sizer
	mqtt   mqtt.Client
	redis  redis.Client
	logger *slog.Logger

	pg      postgres.Client
	pgTable string
}

// NewChecker creates a new health checker. mqttClient and redisClient may be
// nil when the subsystem is disabled.
func NewChecker(index Sizer, mqttClient mqtt.Client, redisClient redis.Client, logger *slog.Logger) *Checker {
	return &Checker{
		index:  index,
		mqtt:   mqttClient,
		redis:  redisClient,
		logger: logger,
	}
}

// WithPostgres adds the database to detailed checks, reporting the row
// count of table
func (h *Checker) WithPostgres(pg postgres.Client, table string) *Checker {
	h.pg = pg
	h.pgTable = table
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Buildings int                    `json:"buildings"`
	Services  *Services              `json:"services,omitempty"`
	Postgres  *postgres.HealthStatus `json:"postgres,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	Redis    string `json:"redis"`
	MQTT     string `json:"mqtt"`
	Postgres string `json:"postgres"`
}

// HandlerFunc returns a handler that reports liveness without touching
// dependencies. An empty index is unhealthy.
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Buildings: h.size(),
		}
		statusCode := http.StatusOK
		if response.Buildings == 0 {
			response.Status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}
		h.write(w, statusCode, response)
	}
}

// DetailedHandlerFunc returns a handler that checks every enabled dependency
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			Redis:    StatusDisabled,
			MQTT:     StatusDisabled,
			Postgres: StatusDisabled,
		}

		if h.mqtt != nil {
			services.MQTT = StatusDisconnected
			if h.mqtt.IsConnected() {
				services.MQTT = StatusConnected
			}
		}

		if h.redis != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			services.Redis = StatusConnected
			if err := h.redis.Ping(ctx); err != nil {
				h.logger.Warn("Redis health ping failed", "error", err)
				services.Redis = StatusDisconnected
			}
			cancel()
		}

		var pgStatus *postgres.HealthStatus
		if h.pg != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			pgStatus, _ = h.pg.HealthCheck(ctx, h.pgTable)
			cancel()
			services.Postgres = StatusDisconnected
			if pgStatus != nil && pgStatus.Connected {
				services.Postgres = StatusConnected
			}
		}

		status := "healthy"
		statusCode := http.StatusOK
		if services.Redis == StatusDisconnected || services.MQTT == StatusDisconnected || services.Postgres == StatusDisconnected {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Buildings: h.size(),
			Services:  services,
			Postgres:  pgStatus,
		}
		if response.Buildings == 0 {
			response.Status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}
		h.write(w, statusCode, response)
	}
}

func (h *Checker) size() int {
	if h.index == nil {
		return 0
	}
	return h.index.Size()
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
