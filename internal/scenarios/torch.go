package scenarios

import (
	"context"

	"shelltest/internal/harness"
)

func torchScenario() harness.Scenario {
	return harness.Scenario{
		Name:        "torch",
		Subsystem:   "devices",
		Description: "torch device discovery from the fabricated device tree",
		Run:         runTorch,
	}
}

func runTorch(ctx context.Context, s *harness.Suite) error {
	// Discovery happens at startup, so residue is expected.
	return s.WaitForOutputIgnorePresent(ctx,
		" Found torch device 'white:flash' with min brightness 1 and max brightness 255")
}
