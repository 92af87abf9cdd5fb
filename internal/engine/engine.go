package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/cache"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/internal/index"
	"github.com/saaga0h/energy-twins/internal/insight"
	"github.com/saaga0h/energy-twins/internal/query"
	"github.com/saaga0h/energy-twins/internal/search"
)

// Options tunes the query pipeline
type Options struct {
	MaxK          int
	DefaultK      int
	SearchWorkers int
	SearchTimeout time.Duration
	MapSampleSize int
	CacheTTL      time.Duration
}

// DefaultOptions returns the options used when a field is left zero
func DefaultOptions() Options {
	return Options{
		MaxK:          query.DefaultMaxK,
		DefaultK:      query.DefaultK,
		SearchTimeout: 2 * time.Second,
		MapSampleSize: 10000,
	}
}

// Engine answers twin queries against one immutable reference index. It is
// safe for concurrent use.
type Engine struct {
	idx        *index.Index
	normalizer *query.Normalizer
	searcher   *search.Searcher
	opts       Options
	logger     *slog.Logger

	details *cache.Memo[Detail]
	zones   *cache.Memo[[]float64]
	samples *cache.Memo[[]MapPoint]
}

// New creates an engine over idx. A nil store keeps results in process
// memory.
func New(idx *index.Index, opts Options, store cache.Store, logger *slog.Logger) (*Engine, error) {
	if idx.Size() == 0 {
		return nil, failure.EmptyDataset()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = cache.NewMemory()
	}

	def := DefaultOptions()
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = def.SearchTimeout
	}
	if opts.MapSampleSize <= 0 {
		opts.MapSampleSize = def.MapSampleSize
	}
	normalizer := query.NewNormalizer(opts.MaxK, opts.DefaultK)
	opts.MaxK, opts.DefaultK = normalizer.MaxK, normalizer.DefaultK

	return &Engine{
		idx:        idx,
		normalizer: normalizer,
		searcher:   search.NewSearcher(opts.SearchWorkers),
		opts:       opts,
		logger:     logger,
		details:    cache.NewMemo[Detail](store, opts.CacheTTL, logger),
		zones:      cache.NewMemo[[]float64](store, opts.CacheTTL, logger),
		samples:    cache.NewMemo[[]MapPoint](store, opts.CacheTTL, logger),
	}, nil
}

// Index returns the reference index the engine searches
func (e *Engine) Index() *index.Index {
	return e.idx
}

// Options returns the effective options
func (e *Engine) Options() Options {
	return e.opts
}

// Result is the typed outcome of a successful match
type Result struct {
	Spec     *query.Spec      `json:"user_profile"`
	Twins    []search.Twin    `json:"twins"`
	Insights *insight.Summary `json:"insights"`
}

// Match runs the pipeline for an already normalized query: encode, search,
// summarize. The index is never modified.
func (e *Engine) Match(ctx context.Context, spec *query.Spec) (*Result, error) {
	if spec == nil {
		return nil, failure.InvalidQuery("query", "is required")
	}
	if spec.K < 1 || spec.K > e.opts.MaxK {
		return nil, failure.InvalidQuery(query.FieldK, fmt.Sprintf("must be between 1 and %d", e.opts.MaxK))
	}

	params := e.idx.Params()
	q, err := params.EncodeQuery(spec)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.SearchTimeout)
	defer cancel()

	twins, err := e.searcher.Search(ctx, q, e.idx, spec.K)
	if err != nil {
		return nil, err
	}

	summary, err := insight.Summarize(twins, spec.MonthlyUsage, params.Categories(building.FieldHeatingFuel))
	if err != nil {
		return nil, err
	}

	return &Result{Spec: spec, Twins: twins, Insights: summary}, nil
}

// ErrorInfo identifies a failure for transport clients
type ErrorInfo struct {
	Kind  failure.Kind `json:"kind"`
	Field string       `json:"field,omitempty"`
	Value string       `json:"value,omitempty"`
}

// Response is the structured reply to a raw query
type Response struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message,omitempty"`
	RequestID   string           `json:"request_id"`
	Error       *ErrorInfo       `json:"error,omitempty"`
	UserProfile *query.Spec      `json:"user_profile,omitempty"`
	Twins       []search.Twin    `json:"twins,omitempty"`
	Insights    *insight.Summary `json:"insights,omitempty"`
}

type requestIDKey struct{}

// WithRequestID attaches a caller-chosen request ID that FindTwins reports
// and logs instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// FindTwins validates a raw query and runs Match. Failures are reported in
// the response rather than as a Go error.
func (e *Engine) FindTwins(ctx context.Context, raw query.Raw) *Response {
	start := time.Now()
	resp := &Response{RequestID: requestID(ctx)}

	spec, err := e.normalizer.Normalize(raw)
	if err != nil {
		return e.fail(resp, err)
	}

	result, err := e.Match(ctx, spec)
	if err != nil {
		return e.fail(resp, err)
	}

	resp.Success = true
	resp.Message = fmt.Sprintf("Found %d energy twins", len(result.Twins))
	resp.UserProfile = result.Spec
	resp.Twins = result.Twins
	resp.Insights = result.Insights

	e.logger.Info("Twin query answered",
		"request_id", resp.RequestID,
		"k", spec.K,
		"twins", len(result.Twins),
		"usage_class", result.Insights.UsageClass,
		"duration_ms", time.Since(start).Milliseconds())
	return resp
}

func (e *Engine) fail(resp *Response, err error) *Response {
	resp.Success = false
	resp.Message = err.Error()

	var fe *failure.Error
	if errors.As(err, &fe) {
		resp.Error = &ErrorInfo{Kind: fe.Kind, Field: fe.Field, Value: fe.Value}
	}

	switch failure.KindOf(err) {
	case failure.KindEmptyResultSet:
		e.logger.Error("Search returned no twins for a valid query", "request_id", resp.RequestID, "error", err)
	case failure.KindTimeout:
		e.logger.Warn("Twin query timed out", "request_id", resp.RequestID, "timeout", e.opts.SearchTimeout)
	case "":
		e.logger.Error("Twin query failed", "request_id", resp.RequestID, "error", err)
		resp.Message = "internal error"
	default:
		e.logger.Info("Twin query rejected", "request_id", resp.RequestID, "error", err)
	}
	return resp
}
