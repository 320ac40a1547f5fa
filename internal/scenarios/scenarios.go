// Package scenarios defines the per-subsystem test cases. Each scenario
// drives one mock backend's control capability or the device testbed,
// then asserts the shell's observable reaction through the suite's output
// assertion primitives. Scenarios only assert patterns attributable to
// the subsystem they just drove; waits that may legitimately match
// residue from startup opt into ignore-present semantics.
package scenarios

import (
	"fmt"

	"shelltest/internal/harness"
)

// All returns every scenario in suite order.
func All() []harness.Scenario {
	return []harness.Scenario{
		modemScenario(),
		vpnScenario(),
		wifiScenario(),
		bluetoothScenario(),
		torchScenario(),
		backlightScenario(),
	}
}

// checkOutput asserts a pattern is already present in the transcript.
func checkOutput(s *harness.Suite, pattern string) error {
	if !s.CheckForOutput(pattern) {
		return fmt.Errorf("expected output %q not present", pattern)
	}
	return nil
}

// mockMissing is the error for a scenario whose backend is not running.
func mockMissing(id string) error {
	return fmt.Errorf("mock backend %q is not registered", id)
}
