package harness

import (
	"context"
	"fmt"
	"time"

	"shelltest/pkg/logging"
)

// RunnerOptions tune one suite run.
type RunnerOptions struct {
	// FailFast stops after the first failed scenario.
	FailFast bool
	// Scenario, when non-empty, runs only the named scenario.
	Scenario string
	// ScenarioTimeout bounds each scenario; zero means no extra bound
	// beyond the per-wait timeouts.
	ScenarioTimeout time.Duration
}

// Runner executes scenarios sequentially against one suite lifecycle.
// Scenarios never run concurrently: sequential discipline is what makes
// suite-level resources safe to share without locking.
type Runner struct {
	lifecycle Lifecycle
	reporter  *Reporter
	opts      RunnerOptions
}

// NewRunner creates a runner.
func NewRunner(lifecycle Lifecycle, reporter *Reporter, opts RunnerOptions) *Runner {
	return &Runner{
		lifecycle: lifecycle,
		reporter:  reporter,
		opts:      opts,
	}
}

// Run brings the suite up, executes the scenarios in order, and tears the
// suite down regardless of scenario outcome. The returned error is
// non-nil for harness-level faults (setup failure, dirty teardown,
// leftover criticals); scenario failures are reflected in the result
// counters only.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*SuiteResult, error) {
	result := &SuiteResult{
		StartTime:      time.Now(),
		TotalScenarios: len(scenarios),
	}
	r.reporter.ReportStart(scenarios)

	if err := r.lifecycle.Setup(ctx); err != nil {
		return nil, fmt.Errorf("suite setup failed: %w", err)
	}

	for _, scenario := range scenarios {
		if r.opts.Scenario != "" && scenario.Name != r.opts.Scenario {
			skipped := ScenarioResult{
				Name:      scenario.Name,
				Subsystem: scenario.Subsystem,
				Result:    ResultSkipped,
			}
			result.ScenarioResults = append(result.ScenarioResults, skipped)
			result.SkippedScenarios++
			r.reporter.ReportScenarioResult(skipped)
			continue
		}

		scenarioResult := r.runScenario(ctx, scenario)
		result.ScenarioResults = append(result.ScenarioResults, scenarioResult)

		switch scenarioResult.Result {
		case ResultPassed:
			result.PassedScenarios++
		case ResultFailed:
			result.FailedScenarios++
		}
		r.reporter.ReportScenarioResult(scenarioResult)

		if r.opts.FailFast && scenarioResult.Result == ResultFailed {
			logging.Info(subsystem, "fail-fast: stopping after %s", scenario.Name)
			break
		}
	}

	teardown := r.lifecycle.Teardown()
	result.CleanShutdown = teardown.CleanShutdown
	result.Criticals = teardown.Criticals
	result.Warnings = teardown.Warnings

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	r.reporter.ReportSuiteResult(*result)

	if teardown.Err != nil {
		return result, fmt.Errorf("suite teardown failed: %w", teardown.Err)
	}
	if !teardown.CleanShutdown {
		return result, fmt.Errorf("shell did not shut down gracefully")
	}
	if len(teardown.Criticals) > 0 {
		return result, fmt.Errorf("transcript contains %d critical lines", len(teardown.Criticals))
	}
	return result, nil
}

// runScenario executes one scenario with its bounded timeout.
func (r *Runner) runScenario(ctx context.Context, scenario Scenario) ScenarioResult {
	r.reporter.ReportScenarioStart(scenario)

	scenarioCtx := ctx
	if r.opts.ScenarioTimeout > 0 {
		var cancel context.CancelFunc
		scenarioCtx, cancel = context.WithTimeout(ctx, r.opts.ScenarioTimeout)
		defer cancel()
	}

	result := ScenarioResult{
		Name:      scenario.Name,
		Subsystem: scenario.Subsystem,
		StartTime: time.Now(),
	}

	if err := scenario.Run(scenarioCtx, r.lifecycle.Suite()); err != nil {
		result.Result = ResultFailed
		result.Error = err.Error()
	} else {
		result.Result = ResultPassed
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result
}
