package scenarios

import (
	"context"

	"github.com/godbus/dbus/v5"

	"shelltest/internal/harness"
	"shelltest/internal/mockreg"
)

func vpnScenario() harness.Scenario {
	return harness.Scenario{
		Name:        "vpn",
		Subsystem:   "network",
		Description: "VPN profile tracking picks the most recently used connection",
		Run:         runVPN,
	}
}

func runVPN(ctx context.Context, s *harness.Suite) error {
	entry := s.Mock("networkmanager")
	if entry == nil {
		return mockMissing("networkmanager")
	}
	nm := mockreg.Network(entry)

	// Startup may already have logged the baseline.
	if err := s.WaitForOutputIgnorePresent(ctx, " VPN present: 0, uuid: (null)\n"); err != nil {
		return err
	}

	_, err := nm.AddConnection(mockreg.ConnectionSettings{
		"connection": {
			"timestamp": dbus.MakeVariant(uint64(1441979296)),
			"type":      dbus.MakeVariant("vpn"),
			"id":        dbus.MakeVariant("a"),
			"uuid":      dbus.MakeVariant("11111111-1111-1111-1111-111111111111"),
		},
		"vpn": {
			"service-type": dbus.MakeVariant("org.freedesktop.NetworkManager.openvpn"),
			"data":         dbus.MakeVariant(map[string]string{"connection-type": "tls"}),
		},
	})
	if err != nil {
		return err
	}
	if err := s.WaitForOutput(ctx, " VPN present: 1, uuid: 11111111-1111-1111-1111-111111111111\n"); err != nil {
		return err
	}

	// A wireguard connection with a newer timestamp takes over.
	_, err = nm.AddConnection(mockreg.ConnectionSettings{
		"connection": {
			"timestamp": dbus.MakeVariant(uint64(1441979300)),
			"type":      dbus.MakeVariant("vpn"),
			"id":        dbus.MakeVariant("b"),
			"uuid":      dbus.MakeVariant("22222222-2222-2222-2222-222222222222"),
		},
		"wireguard": {},
	})
	if err != nil {
		return err
	}
	return s.WaitForOutput(ctx, " VPN present: 1, uuid: 22222222-2222-2222-2222-222222222222\n")
}
