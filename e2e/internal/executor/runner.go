package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saaga0h/energy-twins/e2e/internal/checker"
	"github.com/saaga0h/energy-twins/e2e/internal/scenario"
	"github.com/saaga0h/energy-twins/pkg/postgres"
)

// Asker is the request side of the twins MQTT contract
type Asker interface {
	Ask(ctx context.Context, query map[string]interface{}) (map[string]interface{}, error)
	Summary(ctx context.Context) (map[string]interface{}, error)
}

// Getter fetches a JSON document from the HTTP API
type Getter interface {
	Get(ctx context.Context, path string) (map[string]interface{}, error)
}

// Runner orchestrates scenario execution. The API, Redis and Postgres are
// optional; steps and checks against a missing one fail.
type Runner struct {
	client Asker
	api    Getter
	redis  *redis.Client
	pg     postgres.Client
	logger *slog.Logger
}

// NewRunner creates a new scenario runner
func NewRunner(client Asker, api Getter, redisClient *redis.Client, pg postgres.Client, logger *slog.Logger) *Runner {
	return &Runner{
		client: client,
		api:    api,
		redis:  redisClient,
		pg:     pg,
		logger: logger,
	}
}

// Run executes every step in order, then every state check. Step failures
// are recorded in the result; only a cancelled ctx aborts the run.
func (r *Runner) Run(ctx context.Context, s *scenario.Scenario) (*scenario.TestResult, error) {
	r.logger.Info("Starting scenario", "name", s.Name, "steps", len(s.Steps), "checks", len(s.Checks))

	result := &scenario.TestResult{
		Scenario:  s.Name,
		StartTime: time.Now(),
		Passed:    true,
	}

	for i := range s.Steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scenario aborted: %w", err)
		}
		res := r.runStep(ctx, &s.Steps[i])
		r.log(res)
		result.Record(res)
	}

	for i := range s.Checks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scenario aborted: %w", err)
		}
		res := r.runCheck(ctx, &s.Checks[i])
		r.log(res)
		result.Record(res)
	}

	result.EndTime = time.Now()
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, st *scenario.Step) scenario.StepResult {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, st.Timeout())
	defer cancel()

	var (
		reply map[string]interface{}
		err   error
	)
	switch {
	case st.Kind == scenario.KindSummary:
		reply, err = r.client.Summary(stepCtx)
	case st.Kind == scenario.KindHTTP && r.api == nil:
		err = fmt.Errorf("http steps require --api-url")
	case st.Kind == scenario.KindHTTP:
		reply, err = r.api.Get(stepCtx, st.Path)
	default:
		reply, err = r.client.Ask(stepCtx, st.Query)
	}

	res := scenario.StepResult{Name: st.Name, Layer: st.Kind, Elapsed: time.Since(start)}
	if err != nil {
		res.Reason = err.Error()
		return res
	}

	res.Actual = reply
	res.Passed, res.Reason = checker.MatchesExpectation(reply, st.Expect)
	return res
}

func (r *Runner) runCheck(ctx context.Context, c *scenario.StateCheck) scenario.StepResult {
	start := time.Now()
	res := scenario.StepResult{Name: c.Name, Layer: c.Layer()}

	switch {
	case c.RedisPattern != "" && r.redis == nil:
		res.Reason = "redis checks require --redis-addr"
	case c.RedisPattern != "":
		res.Passed, res.Reason, res.Actual = checker.CheckRedisKeys(ctx, r.redis, c.RedisPattern, c.Expected)
	case r.pg == nil:
		res.Reason = "postgres checks require --check-postgres"
	default:
		res.Passed, res.Reason, res.Actual = checker.CheckPostgresQuery(ctx, r.pg, c.PostgresQuery, c.Expected)
	}

	res.Elapsed = time.Since(start)
	return res
}

func (r *Runner) log(res scenario.StepResult) {
	if res.Passed {
		r.logger.Info("PASS", "layer", res.Layer, "name", res.Name, "elapsed", res.Elapsed)
		return
	}
	r.logger.Warn("FAIL", "layer", res.Layer, "name", res.Name, "reason", res.Reason)
}
