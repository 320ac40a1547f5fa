package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shelltest/internal/config"
	"shelltest/internal/harness"
	"shelltest/internal/scenarios"
)

var (
	runConfigPath      string
	runScenario        string
	runFailFast        bool
	runVerbose         bool
	runReportPath      string
	runScenarioTimeout time.Duration
)

// completeScenarioFlag provides shell completion for the scenario flag.
func completeScenarioFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var names []string
	for _, sc := range scenarios.All() {
		names = append(names, sc.Name)
	}
	return names, cobra.ShellCompDirectiveDefault
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scenario suite against the configured shell",
		Long: `The run command brings up the full simulated environment in strict
order (buses, device testbed, mock backends, shell), executes the
scenarios sequentially, and tears everything down in reverse order.

The suite fails, even when every scenario passed, if the shell does not
shut down gracefully or critical-severity lines are left in the
transcript.

Example usage:
  shelltest run --config suite.yaml
  shelltest run --scenario wifi --verbose
  shelltest run --fail-fast --report report.json`,
		RunE: runSuite,
	}

	cmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "suite configuration file (YAML)")
	cmd.Flags().StringVar(&runScenario, "scenario", "", "run only the named scenario")
	cmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "stop after the first failed scenario")
	cmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "detailed scenario output")
	cmd.Flags().StringVar(&runReportPath, "report", "", "write a JSON report to this path")
	cmd.Flags().DurationVar(&runScenarioTimeout, "scenario-timeout", 2*time.Minute, "bound for each scenario")
	cmd.RegisterFlagCompletionFunc("scenario", completeScenarioFlag)

	return cmd
}

func runSuite(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	suite := harness.NewSuite(cfg)
	reporter := harness.NewReporter(os.Stdout, runVerbose, runReportPath)
	runner := harness.NewRunner(suite, reporter, harness.RunnerOptions{
		FailFast:        runFailFast,
		Scenario:        runScenario,
		ScenarioTimeout: runScenarioTimeout,
	})

	result, err := runner.Run(ctx, scenarios.All())
	if err != nil {
		return err
	}
	if result.FailedScenarios > 0 {
		return fmt.Errorf("%d of %d scenarios failed", result.FailedScenarios, result.TotalScenarios)
	}
	return nil
}
