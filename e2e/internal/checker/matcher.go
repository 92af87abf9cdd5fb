package checker

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// MatchesExpectation checks an actual value decoded from JSON or a database
// row against an expected value from a scenario. Maps match as subsets,
// slices element-wise. Expected strings may be matchers:
//
//	~pattern~   regular expression over the formatted value
//	>n >=n <n <=n   numeric comparison
//	len:N len:>=N   length of a slice, map or string
//
// Returns (true, "") on match, (false, reason) on mismatch.
func MatchesExpectation(actual, expected interface{}) (bool, string) {
	if expected == nil {
		if actual == nil {
			return true, ""
		}
		return false, fmt.Sprintf("expected nil, got %v", actual)
	}
	if actual == nil {
		return false, fmt.Sprintf("expected %v, got nil", expected)
	}

	if s, ok := expected.(string); ok {
		switch {
		case len(s) > 1 && strings.HasPrefix(s, "~") && strings.HasSuffix(s, "~"):
			return matchRegex(actual, strings.Trim(s, "~"))
		case strings.HasPrefix(s, "len:"):
			return matchLength(actual, strings.TrimPrefix(s, "len:"))
		case strings.HasPrefix(s, ">") || strings.HasPrefix(s, "<"):
			return matchComparison(actual, s)
		}
	}

	switch exp := expected.(type) {
	case string:
		act, ok := asString(actual)
		if !ok {
			return false, fmt.Sprintf("expected string, got %T", actual)
		}
		if act == exp {
			return true, ""
		}
		return false, fmt.Sprintf("expected %q, got %q", exp, act)

	case bool:
		act, ok := actual.(bool)
		if !ok {
			return false, fmt.Sprintf("expected bool, got %T", actual)
		}
		if act == exp {
			return true, ""
		}
		return false, fmt.Sprintf("expected %v, got %v", exp, act)

	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return false, fmt.Sprintf("expected object, got %T", actual)
		}
		for key, want := range exp {
			got, exists := act[key]
			if !exists {
				return false, fmt.Sprintf("missing key %q", key)
			}
			if ok, reason := MatchesExpectation(got, want); !ok {
				return false, fmt.Sprintf("key %q: %s", key, reason)
			}
		}
		return true, ""

	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return false, fmt.Sprintf("expected array, got %T", actual)
		}
		if len(act) != len(exp) {
			return false, fmt.Sprintf("expected array length %d, got %d", len(exp), len(act))
		}
		for i := range exp {
			if ok, reason := MatchesExpectation(act[i], exp[i]); !ok {
				return false, fmt.Sprintf("element %d: %s", i, reason)
			}
		}
		return true, ""
	}

	want, err := toFloat64(expected)
	if err != nil {
		if reflect.DeepEqual(actual, expected) {
			return true, ""
		}
		return false, fmt.Sprintf("expected %v, got %v", expected, actual)
	}
	got, err := toFloat64(actual)
	if err != nil {
		return false, fmt.Sprintf("actual value is not numeric: %v", actual)
	}
	if got == want {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v, got %v", expected, actual)
}

func matchRegex(actual interface{}, pattern string) (bool, string) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)
	}

	s, ok := asString(actual)
	if !ok {
		s = fmt.Sprintf("%v", actual)
	}
	if re.MatchString(s) {
		return true, ""
	}
	return false, fmt.Sprintf("value %q does not match pattern ~%s~", s, pattern)
}

func matchLength(actual interface{}, spec string) (bool, string) {
	v := reflect.ValueOf(actual)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
	default:
		return false, fmt.Sprintf("cannot take length of %T", actual)
	}

	if spec != "" && spec[0] != '>' && spec[0] != '<' {
		spec = "=" + spec
	}
	return matchComparison(v.Len(), spec)
}

// matchComparison evaluates spec (">5", "<=2.5", "=3") against actual
func matchComparison(actual interface{}, spec string) (bool, string) {
	got, err := toFloat64(actual)
	if err != nil {
		return false, fmt.Sprintf("cannot compare non-numeric value: %v", actual)
	}

	var op string
	for _, candidate := range []string{">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(spec, candidate) {
			op = candidate
			break
		}
	}
	if op == "" {
		return false, fmt.Sprintf("invalid comparison: %s", spec)
	}

	valueStr := strings.TrimSpace(strings.TrimPrefix(spec, op))
	want, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return false, fmt.Sprintf("invalid comparison value: %s", valueStr)
	}

	var ok bool
	switch op {
	case ">":
		ok = got > want
	case "<":
		ok = got < want
	case ">=":
		ok = got >= want
	case "<=":
		ok = got <= want
	case "=":
		ok = got == want
	}
	if ok {
		return true, ""
	}
	return false, fmt.Sprintf("expected value %s %v, got %v", op, want, got)
}

func asString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	}
	return "", false
}

// toFloat64 converts JSON, YAML and database numerics. lib/pq returns
// NUMERIC columns as []byte.
func toFloat64(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	default:
		return 0, fmt.Errorf("not a numeric type: %T", val)
	}
}
