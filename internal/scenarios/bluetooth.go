package scenarios

import (
	"context"
	"fmt"

	"shelltest/internal/harness"
	"shelltest/internal/mockreg"
)

func bluetoothScenario() harness.Scenario {
	return harness.Scenario{
		Name:        "bluetooth",
		Subsystem:   "bluetooth",
		Description: "adapter state tracking when an adapter appears",
		Run:         runBluetooth,
	}
}

func runBluetooth(ctx context.Context, s *harness.Suite) error {
	entry := s.Mock("bluez5")
	if entry == nil {
		return mockMissing("bluez5")
	}

	// A stale rfkill soft block would make the enabled check meaningless.
	if rfkill := s.Mock("gsd_rfkill"); rfkill != nil {
		airplane, err := mockreg.Rfkill(rfkill).AirplaneMode()
		if err != nil {
			return err
		}
		if airplane {
			return fmt.Errorf("airplane mode unexpectedly enabled before adapter setup")
		}
	}

	if err := checkOutput(s, " BT enabled: 1"); err != nil {
		return err
	}

	if _, err := mockreg.Bluetooth(entry).AddAdapter("hci0", "my-phone"); err != nil {
		return err
	}
	return s.WaitForOutput(ctx, " State: BLUETOOTH_ADAPTER_STATE_ON")
}
