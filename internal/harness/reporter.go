package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"shelltest/pkg/logging"
)

// Console styles for scenario results.
var (
	stylePassed = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#02BA84", Dark: "#02BF87",
	})
	styleFailed = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#D70000", Dark: "#ED567A",
	}).Bold(true)
	styleSkipped = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#909090", Dark: "#626262",
	})
	styleHeading = lipgloss.NewStyle().Bold(true)
)

// Reporter prints scenario progress to the console and optionally writes
// a JSON report of the whole run.
type Reporter struct {
	out        io.Writer
	verbose    bool
	reportPath string
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer, verbose bool, reportPath string) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{
		out:        out,
		verbose:    verbose,
		reportPath: reportPath,
	}
}

// ReportStart is called once before setup.
func (r *Reporter) ReportStart(scenarios []Scenario) {
	fmt.Fprintln(r.out, styleHeading.Render(fmt.Sprintf("Running %d scenarios", len(scenarios))))
}

// ReportScenarioStart is called when a scenario begins.
func (r *Reporter) ReportScenarioStart(scenario Scenario) {
	if r.verbose {
		fmt.Fprintf(r.out, "=== %s (%s)\n", scenario.Name, scenario.Subsystem)
		if scenario.Description != "" {
			fmt.Fprintf(r.out, "    %s\n", scenario.Description)
		}
	}
}

// ReportScenarioResult is called when a scenario completes.
func (r *Reporter) ReportScenarioResult(result ScenarioResult) {
	var rendered string
	switch result.Result {
	case ResultPassed:
		rendered = stylePassed.Render(string(result.Result))
	case ResultFailed:
		rendered = styleFailed.Render(string(result.Result))
	default:
		rendered = styleSkipped.Render(string(result.Result))
	}

	fmt.Fprintf(r.out, "%-30s %s (%v)\n", result.Name, rendered, result.Duration.Round(time.Millisecond))
	if result.Error != "" {
		fmt.Fprintf(r.out, "    %s\n", styleFailed.Render(result.Error))
	}
}

// ReportSuiteResult is called once after teardown.
func (r *Reporter) ReportSuiteResult(result SuiteResult) {
	fmt.Fprintln(r.out, styleHeading.Render(fmt.Sprintf(
		"%d passed, %d failed, %d skipped in %v",
		result.PassedScenarios, result.FailedScenarios, result.SkippedScenarios,
		result.Duration.Round(time.Millisecond))))

	if !result.CleanShutdown {
		fmt.Fprintln(r.out, styleFailed.Render("shell shutdown was not graceful"))
	}
	for _, line := range result.Criticals {
		fmt.Fprintln(r.out, styleFailed.Render("critical: "+line))
	}
	for _, line := range result.Warnings {
		fmt.Fprintln(r.out, styleSkipped.Render("warning: "+line))
	}

	if r.reportPath != "" {
		if err := r.writeReport(result); err != nil {
			logging.Error(subsystem, err, "failed to write report")
		}
	}
}

// writeReport saves the suite result as JSON.
func (r *Reporter) writeReport(result SuiteResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(r.reportPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", r.reportPath, err)
	}
	return nil
}
