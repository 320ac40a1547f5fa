package harness

import (
	"context"
	"time"
)

// Result represents the outcome of a scenario.
type Result string

const (
	// ResultPassed indicates the scenario passed.
	ResultPassed Result = "PASSED"
	// ResultFailed indicates an assertion on the shell's behavior failed.
	ResultFailed Result = "FAILED"
	// ResultSkipped indicates the scenario was filtered out.
	ResultSkipped Result = "SKIPPED"
)

// Scenario is one independent test case: it drives mock or device state
// and asserts the shell's observable reaction through the suite's output
// assertion primitives. Scenarios run sequentially and hold only
// non-owning references into the suite.
type Scenario struct {
	// Name is the unique identifier for the scenario.
	Name string
	// Subsystem is the simulated subsystem being driven.
	Subsystem string
	// Description provides a human-readable summary.
	Description string
	// Run drives the scenario against the suite.
	Run func(ctx context.Context, s *Suite) error
}

// ScenarioResult represents the outcome of a single scenario.
type ScenarioResult struct {
	Name      string        `json:"name"`
	Subsystem string        `json:"subsystem"`
	Result    Result        `json:"result"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// SuiteResult represents the overall outcome of one suite run.
type SuiteResult struct {
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	Duration         time.Duration    `json:"duration"`
	TotalScenarios   int              `json:"total_scenarios"`
	PassedScenarios  int              `json:"passed_scenarios"`
	FailedScenarios  int              `json:"failed_scenarios"`
	SkippedScenarios int              `json:"skipped_scenarios"`
	ScenarioResults  []ScenarioResult `json:"scenario_results"`
	// CleanShutdown is true when the shell shut down gracefully at
	// teardown.
	CleanShutdown bool `json:"clean_shutdown"`
	// Criticals are the critical-severity lines left in the transcript;
	// any entry makes the whole run untrustworthy.
	Criticals []string `json:"criticals,omitempty"`
	// Warnings are reported but non-fatal.
	Warnings []string `json:"warnings,omitempty"`
}

// Lifecycle is the suite-level resource owner the runner drives: strict
// ordered setup, scenarios, strict reverse teardown.
type Lifecycle interface {
	// Setup brings up buses, testbed, mocks and the shell, in that
	// order. Any failure is fatal for the whole run.
	Setup(ctx context.Context) error
	// Teardown reverses setup and reports shutdown cleanliness.
	Teardown() TeardownReport
	// Suite returns the suite context scenarios run against.
	Suite() *Suite
}

// TeardownReport captures what teardown observed.
type TeardownReport struct {
	// CleanShutdown is the graceful-shutdown flag from the shell.
	CleanShutdown bool
	// Criticals and Warnings classify the final transcript.
	Criticals []string
	Warnings  []string
	// Err is a harness-side teardown fault (not a test result).
	Err error
}
