package insight

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/internal/search"
)

// Comparison thresholds against the twin average. Fixed policy.
const (
	BelowAverageRatio = 0.9
	AboveAverageRatio = 1.1
)

// Usage classes
const (
	ClassBelowAverage = "below_average"
	ClassTypical      = "typical"
	ClassAboveAverage = "above_average"
)

// Summary describes a twin cohort and how the user's stated usage compares
type Summary struct {
	TwinCount      int     `json:"twin_count"`
	AvgTwinUsage   float64 `json:"avg_twin_usage"`
	MinUsage       float64 `json:"min_usage"`
	MaxUsage       float64 `json:"max_usage"`
	EstimatedUsage float64 `json:"estimated_usage"`
	CommonHeating  string  `json:"common_heating"`
	StatedUsage    float64 `json:"stated_usage,omitempty"`
	UsageClass     string  `json:"usage_class,omitempty"`
	Recommendation string  `json:"recommendation"`
}

// Summarize aggregates monthly usage over twins. fuelOrder is the encoder's
// enumeration of heating fuels; it breaks ties in the most common fuel.
func Summarize(twins []search.Twin, stated *float64, fuelOrder []string) (*Summary, error) {
	if len(twins) == 0 {
		return nil, failure.EmptyResultSet()
	}

	usages := make([]float64, len(twins))
	weights := make([]float64, len(twins))
	for i := range twins {
		usages[i] = twins[i].MonthlyUsage
		weights[i] = twins[i].Similarity
	}

	s := &Summary{
		TwinCount:     len(twins),
		AvgTwinUsage:  stat.Mean(usages, nil),
		MinUsage:      floats.Min(usages),
		MaxUsage:      floats.Max(usages),
		CommonHeating: modeHeatingFuel(twins, fuelOrder),
	}

	// Accumulated rounding can push the mean a hair outside the observed range
	s.AvgTwinUsage = min(max(s.AvgTwinUsage, s.MinUsage), s.MaxUsage)

	if floats.Sum(weights) > 0 {
		s.EstimatedUsage = stat.Mean(usages, weights)
	} else {
		s.EstimatedUsage = s.AvgTwinUsage
	}

	if stated != nil {
		s.StatedUsage = *stated
		s.UsageClass = Classify(*stated, s.AvgTwinUsage)
	}
	s.Recommendation = recommend(s, stated)

	return s, nil
}

// Classify compares a stated usage with the twin average
func Classify(stated, avg float64) string {
	switch {
	case stated < BelowAverageRatio*avg:
		return ClassBelowAverage
	case stated > AboveAverageRatio*avg:
		return ClassAboveAverage
	default:
		return ClassTypical
	}
}

func recommend(s *Summary, stated *float64) string {
	if stated == nil {
		return fmt.Sprintf(
			"Based on %d similar homes, you can expect around %.0f kWh/month (range %.0f to %.0f kWh/month).",
			s.TwinCount, s.AvgTwinUsage, s.MinUsage, s.MaxUsage)
	}

	switch s.UsageClass {
	case ClassAboveAverage:
		return fmt.Sprintf(
			"Your energy usage (%.0f kWh/month) is above average for similar homes (avg: %.0f kWh/month). Consider energy-efficient upgrades.",
			*stated, s.AvgTwinUsage)
	case ClassBelowAverage:
		return fmt.Sprintf(
			"Excellent! Your energy usage (%.0f kWh/month) is below average for similar homes (avg: %.0f kWh/month).",
			*stated, s.AvgTwinUsage)
	default:
		return fmt.Sprintf(
			"Your energy usage (%.0f kWh/month) is typical for similar homes (avg: %.0f kWh/month).",
			*stated, s.AvgTwinUsage)
	}
}

// modeHeatingFuel returns the most frequent heating fuel. Among equally
// frequent fuels the one earliest in order wins; fuels missing from order
// rank after it in first-seen order.
func modeHeatingFuel(twins []search.Twin, order []string) string {
	counts := make(map[string]int)
	var seen []string
	for i := range twins {
		f := twins[i].HeatingFuel
		if counts[f] == 0 {
			seen = append(seen, f)
		}
		counts[f]++
	}

	candidates := make([]string, 0, len(seen))
	inOrder := make(map[string]bool, len(order))
	for _, f := range order {
		inOrder[f] = true
		if counts[f] > 0 {
			candidates = append(candidates, f)
		}
	}
	for _, f := range seen {
		if !inOrder[f] {
			candidates = append(candidates, f)
		}
	}

	best := ""
	bestCount := 0
	for _, f := range candidates {
		if counts[f] > bestCount {
			best, bestCount = f, counts[f]
		}
	}
	return best
}
