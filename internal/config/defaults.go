package config

import "time"

// Default returns the built-in suite configuration. It works out of the
// box against a shell started through its nested-session runner script;
// everything can be overridden from a YAML file.
func Default() Config {
	return Config{
		Shell: ShellConfig{
			GSettingsBackend: "keyfile",
			ReadyTimeout:     30 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Bus: BusConfig{
			DaemonBin: "dbus-daemon",
		},
		Mocks: MocksConfig{
			Launcher: []string{"python3", "-m", "dbusmock"},
			Templates: []string{
				"bluez5",
				"gsd_rfkill",
				"modemmanager",
				"networkmanager",
			},
		},
		Debug: DebugConfig{
			Categories: []string{
				"shell-brightness-manager",
				"shell-backlight",
				"shell-backlight-sysfs",
				"shell-bt-manager",
				"shell-cell-broadcast-manager",
				"shell-udev-manager",
				"shell-torch-manager",
				"shell-vpn-manager",
				"shell-wifi-manager",
				"shell-wwan-manager",
				"shell-wwan-mm",
			},
			DesktopID: "Shell:GNOME",
		},
		Waits: WaitsConfig{
			Timeout: 10 * time.Second,
			Quantum: 100 * time.Millisecond,
		},
	}
}
