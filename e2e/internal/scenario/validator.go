package scenario

import (
	"fmt"
	"strings"
)

// ValidateScenario performs validation checks on a loaded scenario.
// Steps without a kind default to query steps.
func ValidateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("scenario description is required")
	}
	if len(s.Steps) == 0 && len(s.Checks) == 0 {
		return fmt.Errorf("scenario has no steps or checks")
	}

	names := make(map[string]bool)
	for i := range s.Steps {
		if err := validateStep(&s.Steps[i]); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if names[s.Steps[i].Name] {
			return fmt.Errorf("step %d: duplicate name %q", i, s.Steps[i].Name)
		}
		names[s.Steps[i].Name] = true
	}

	for i := range s.Checks {
		if err := validateCheck(&s.Checks[i]); err != nil {
			return fmt.Errorf("check %d: %w", i, err)
		}
	}
	return nil
}

func validateStep(st *Step) error {
	if st.Name == "" {
		return fmt.Errorf("name is required")
	}
	if st.Kind == "" {
		st.Kind = KindQuery
	}

	switch st.Kind {
	case KindQuery:
		if len(st.Query) == 0 {
			return fmt.Errorf("query step %q needs a query", st.Name)
		}
	case KindSummary:
		if len(st.Query) > 0 {
			return fmt.Errorf("summary step %q must not carry a query", st.Name)
		}
	case KindHTTP:
		if !strings.HasPrefix(st.Path, "/") {
			return fmt.Errorf("http step %q needs an absolute path", st.Name)
		}
	default:
		return fmt.Errorf("unknown kind %q (must be %s, %s or %s)", st.Kind, KindQuery, KindSummary, KindHTTP)
	}

	if len(st.Expect) == 0 {
		return fmt.Errorf("step %q has no expectations", st.Name)
	}
	if st.TimeoutSeconds < 0 {
		return fmt.Errorf("step %q: timeout must not be negative", st.Name)
	}
	return nil
}

func validateCheck(c *StateCheck) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	hasRedis := c.RedisPattern != ""
	hasPostgres := c.PostgresQuery != ""
	if hasRedis == hasPostgres {
		return fmt.Errorf("check %q needs exactly one of redis_pattern and postgres_query", c.Name)
	}
	if hasPostgres && !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(c.PostgresQuery)), "SELECT") {
		return fmt.Errorf("check %q: postgres_query must be a SELECT", c.Name)
	}
	if c.Expected == nil {
		return fmt.Errorf("check %q has no expected value", c.Name)
	}
	return nil
}
