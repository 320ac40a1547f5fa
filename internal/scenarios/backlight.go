package scenarios

import (
	"context"

	"shelltest/internal/harness"
)

// dimTargetBrightness is the computed value for the configured curve and
// the fabricated backlight's actual/max raw values. The exact number must
// match the shell's curve evaluation byte-for-byte.
const dimTargetBrightness = " Setting target brightness to 764\n"

func backlightScenario() harness.Scenario {
	return harness.Scenario{
		Name:        "backlight",
		Subsystem:   "devices",
		Description: "brightness curve mapping and dimming via the session interface",
		Run:         runBacklight,
	}
}

func runBacklight(ctx context.Context, s *harness.Suite) error {
	if err := s.WaitForOutputIgnorePresent(ctx,
		" Backlight brightness maps to linear brightness curve"); err != nil {
		return err
	}
	if err := s.WaitForOutputIgnorePresent(ctx,
		" Found HEADLESS-1 for brightness control"); err != nil {
		return err
	}

	// The idle-dim setting is enabled by the installed key-file, so
	// flipping the dimming flag must trigger a brightness change.
	if err := s.SetDimming(true); err != nil {
		return err
	}
	if err := s.WaitForOutput(ctx, dimTargetBrightness); err != nil {
		return err
	}
	return s.WaitForOutputIgnorePresent(ctx, " Setting brightness via logind: 764\n")
}
