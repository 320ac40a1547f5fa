package scenarios

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"shelltest/internal/harness"
	"shelltest/internal/mockreg"
)

// cbmChannel and cbmText are the broadcast message the modem scenario
// injects; the shell must echo them byte-for-byte.
const (
	cbmChannel = 4371
	cbmText    = "Dies ist ein Test für Cellbroadcasts"
)

func modemScenario() harness.Scenario {
	return harness.Scenario{
		Name:        "modem",
		Subsystem:   "wwan",
		Description: "modem discovery, data connection tracking and cell broadcast delivery",
		Run:         runModem,
	}
}

func runModem(ctx context.Context, s *harness.Suite) error {
	entry := s.Mock("modemmanager")
	if entry == nil {
		return mockMissing("modemmanager")
	}
	mm := mockreg.Modem(entry)

	if err := mm.AddSimpleModem(); err != nil {
		return err
	}
	if err := s.WaitForOutput(ctx, " Modem is present\n"); err != nil {
		return err
	}
	if err := checkOutput(s, " Enabling cell broadcast interface"); err != nil {
		return err
	}

	// No data connection yet.
	if err := checkOutput(s, " WWAN data connection present: 0"); err != nil {
		return err
	}

	// Add a cellular connection profile; the shell must notice the data
	// connection appearing.
	nm := s.Mock("networkmanager")
	if nm == nil {
		return mockMissing("networkmanager")
	}
	_, err := mockreg.Network(nm).AddConnection(mockreg.ConnectionSettings{
		"connection": {
			"id":   dbus.MakeVariant("gsm"),
			"uuid": dbus.MakeVariant(uuid.NewString()),
			"type": dbus.MakeVariant("gsm"),
		},
	})
	if err != nil {
		return err
	}
	if err := s.WaitForOutput(ctx, " WWAN data connection present: 1"); err != nil {
		return err
	}

	// Simulate an incoming cell broadcast message.
	if err := mm.AddCbm(2, cbmChannel, cbmText); err != nil {
		return err
	}
	return s.WaitForOutput(ctx, fmt.Sprintf(" Received cbm %d: %s", cbmChannel, cbmText))
}
