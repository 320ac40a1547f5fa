package scenarios

import (
	"context"
	"fmt"
	"strings"

	"shelltest/internal/harness"
	"shelltest/internal/mockreg"
)

func wifiScenario() harness.Scenario {
	return harness.Scenario{
		Name:        "wifi",
		Subsystem:   "network",
		Description: "Wi-Fi device tracking and access point grouping by network name",
		Run:         runWifi,
	}
}

func runWifi(ctx context.Context, s *harness.Suite) error {
	entry := s.Mock("networkmanager")
	if entry == nil {
		return mockMissing("networkmanager")
	}
	nm := mockreg.Network(entry)

	if err := checkOutput(s, " NM Wi-Fi enabled: 0, present: 0"); err != nil {
		return err
	}

	dev, err := nm.AddWiFiDevice("wifi0", "wlan0", mockreg.DeviceStateActivated)
	if err != nil {
		return err
	}
	if err := s.WaitForOutput(ctx, " NM Wi-Fi enabled: 1, present: 1"); err != nil {
		return err
	}
	if err := checkOutput(s, " Wi-Fi device connected at 0"); err != nil {
		return err
	}
	// From the hotspot quick setting.
	if err := checkOutput(s, " State: 0, Hotspot: 0 Wi-Fi: 0"); err != nil {
		return err
	}

	// A weak access point creates the network entry.
	_, err = nm.AddAccessPoint(dev, "ap0", "SSID1", "00:de:ad:be:ef:00",
		mockreg.ModeInfra, 2425, 5400, 11, mockreg.APSecKeyMgmtPSK)
	if err != nil {
		return err
	}
	if err := s.WaitForOutput(ctx, " Creating network: SSID1\n"); err != nil {
		return err
	}

	// A stronger one with the same name joins it instead of creating a
	// duplicate.
	_, err = nm.AddAccessPoint(dev, "ap1", "SSID1", "00:de:ad:be:ef:01",
		mockreg.ModeInfra, 2425, 5400, 82, mockreg.APSecKeyMgmtPSK)
	if err != nil {
		return err
	}
	if err := s.WaitForOutput(ctx, " Adding access point to existing network: SSID1\n"); err != nil {
		return err
	}
	if n := strings.Count(s.Shell().Capture().Transcript(), " Creating network: SSID1\n"); n != 1 {
		return fmt.Errorf("network SSID1 created %d times, want exactly 1", n)
	}

	// A different name still creates a new network.
	_, err = nm.AddAccessPoint(dev, "ap2", "SSID2", "00:de:ad:be:ef:01",
		mockreg.ModeInfra, 2425, 5400, 82, mockreg.APSecKeyMgmtPSK)
	if err != nil {
		return err
	}
	return s.WaitForOutput(ctx, " Creating network: SSID2\n")
}
