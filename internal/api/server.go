package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/saaga0h/energy-twins/internal/engine"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/internal/index"
	"github.com/saaga0h/energy-twins/internal/query"
)

// maxBodyBytes bounds a find-twins request body
const maxBodyBytes = 64 << 10

// Server exposes the engine over HTTP
type Server struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates the HTTP API for e
func NewServer(e *engine.Engine, logger *slog.Logger) *Server {
	return &Server{engine: e, logger: logger}
}

// Handler returns the routed API handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/find-twins", s.handleFindTwins)
	mux.HandleFunc("GET /api/global-data", s.handleGlobalData)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/buildings/{id}", s.handleBuilding)
	return s.logRequests(mux)
}

func (s *Server) handleFindTwins(w http.ResponseWriter, r *http.Request) {
	var raw query.Raw
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		s.writeJSON(w, http.StatusBadRequest, &engine.Response{
			Success: false,
			Message: fmt.Sprintf("invalid JSON body: %v", err),
			Error:   &engine.ErrorInfo{Kind: failure.KindValidation},
		})
		return
	}

	resp := s.engine.FindTwins(r.Context(), raw)
	s.writeJSON(w, statusFor(resp), resp)
}

// GlobalData is the map view payload
type GlobalData struct {
	Success    bool              `json:"success"`
	Homes      []engine.MapPoint `json:"homes"`
	Stats      index.Summary     `json:"stats"`
	SampleInfo SampleInfo        `json:"sample_info"`
}

// SampleInfo describes how the map sample relates to the full dataset
type SampleInfo struct {
	Displayed int    `json:"displayed"`
	Total     int    `json:"total"`
	Note      string `json:"note"`
}

func (s *Server) handleGlobalData(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("sample"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, failure.Validation("sample", "must be a positive integer"))
			return
		}
		n = parsed
	}

	homes, err := s.engine.MapSample(r.Context(), n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	stats := s.engine.GlobalSummary()
	s.writeJSON(w, http.StatusOK, GlobalData{
		Success: true,
		Homes:   homes,
		Stats:   stats,
		SampleInfo: SampleInfo{
			Displayed: len(homes),
			Total:     stats.TotalHomes,
			Note:      fmt.Sprintf("Showing %d representative homes from %d total", len(homes), stats.TotalHomes),
		},
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.GlobalSummary())
}

func (s *Server) handleBuilding(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, failure.Validation("id", "must be an integer"))
		return
	}

	detail, err := s.engine.BuildingDetail(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, failure.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

// statusFor maps a query response to an HTTP status
func statusFor(resp *engine.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}
	switch resp.Error.Kind {
	case failure.KindValidation, failure.KindUnknownCategory, failure.KindInvalidQuery:
		return http.StatusBadRequest
	case failure.KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]any{"success": false, "message": err.Error()}
	if kind := failure.KindOf(err); kind != "" {
		body["error"] = engine.ErrorInfo{Kind: kind, Field: failure.FieldOf(err)}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("API request failed", "error", err)
	}
	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode API response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
