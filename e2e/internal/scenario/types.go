package scenario

import "time"

// Step kinds
const (
	KindQuery   = "query"
	KindSummary = "summary"
	KindHTTP    = "http"
)

// Scenario is an end-to-end run against a live twins server
type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Steps       []Step       `yaml:"steps"`
	Checks      []StateCheck `yaml:"checks"`
}

// Step sends one request over MQTT and matches the reply. A summary step
// reads the retained dataset summary instead, and an http step GETs Path
// from the API and matches {"status": code, "body": json}.
type Step struct {
	Name           string                 `yaml:"name"`
	Kind           string                 `yaml:"kind"`
	Query          map[string]interface{} `yaml:"query,omitempty"`
	Path           string                 `yaml:"path,omitempty"`
	TimeoutSeconds int                    `yaml:"timeout_seconds,omitempty"`
	Expect         map[string]interface{} `yaml:"expect"`
}

// Timeout returns how long the step waits for its reply
func (s *Step) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// StateCheck inspects a backing store after all steps ran. Exactly one of
// RedisPattern and PostgresQuery is set.
type StateCheck struct {
	Name          string      `yaml:"name"`
	RedisPattern  string      `yaml:"redis_pattern,omitempty"`
	PostgresQuery string      `yaml:"postgres_query,omitempty"`
	Expected      interface{} `yaml:"expected"`
}

// Layer names the store a check targets
func (c *StateCheck) Layer() string {
	if c.RedisPattern != "" {
		return "redis"
	}
	return "postgres"
}

// TestResult is the outcome of a scenario
type TestResult struct {
	Scenario    string       `json:"scenario"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
	Passed      bool         `json:"passed"`
	PassedCount int          `json:"passed_count"`
	FailedCount int          `json:"failed_count"`
	Results     []StepResult `json:"results"`
}

// StepResult is the outcome of one step or state check
type StepResult struct {
	Name    string        `json:"name"`
	Layer   string        `json:"layer"`
	Passed  bool          `json:"passed"`
	Reason  string        `json:"reason,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Actual  interface{}   `json:"actual,omitempty"`
}

// Record appends r and updates the counters
func (t *TestResult) Record(r StepResult) {
	t.Results = append(t.Results, r)
	if r.Passed {
		t.PassedCount++
	} else {
		t.FailedCount++
	}
	t.Passed = t.FailedCount == 0
}
