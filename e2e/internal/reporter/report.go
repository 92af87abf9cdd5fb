package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/saaga0h/energy-twins/e2e/internal/scenario"
)

// Format renders a human-readable report of a scenario run
func Format(result *scenario.TestResult) string {
	var sb strings.Builder

	sb.WriteString("==========================================================\n")
	fmt.Fprintf(&sb, "  Scenario: %s\n", truncate(result.Scenario, 46))
	fmt.Fprintf(&sb, "  Duration: %s\n", formatDuration(result.EndTime.Sub(result.StartTime)))
	sb.WriteString("==========================================================\n\n")

	for _, r := range result.Results {
		icon := "✓"
		if !r.Passed {
			icon = "✗"
		}
		fmt.Fprintf(&sb, "%s %-8s %s (%s)", icon, r.Layer, r.Name, formatDuration(r.Elapsed))
		if !r.Passed {
			fmt.Fprintf(&sb, ": %s", r.Reason)
		}
		sb.WriteString("\n")
	}

	status := "ALL CHECKS PASSED"
	if result.FailedCount > 0 {
		status = fmt.Sprintf("%d CHECK(S) FAILED", result.FailedCount)
	}
	fmt.Fprintf(&sb, "\nPassed: %d  Failed: %d  Status: %s\n", result.PassedCount, result.FailedCount, status)

	return sb.String()
}

// SaveReport writes the text report to filename
func SaveReport(content string, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// SaveSummary writes the result as indented JSON to filename
func SaveSummary(result *scenario.TestResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return SaveReport(string(data), filename)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	return fmt.Sprintf("%dm %.1fs", minutes, d.Seconds()-float64(minutes*60))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
