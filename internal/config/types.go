package config

import "time"

// Config is the complete suite configuration.
type Config struct {
	Shell ShellConfig `yaml:"shell"`
	Bus   BusConfig   `yaml:"bus"`
	Mocks MocksConfig `yaml:"mocks"`
	Debug DebugConfig `yaml:"debug"`
	Waits WaitsConfig `yaml:"waits"`
}

// ShellConfig describes how to launch the shell under test.
type ShellConfig struct {
	// Argv is the shell command.
	Argv []string `yaml:"argv"`
	// Wrapper is an optional command prefix, used to interpose
	// hardware emulation at the process level.
	Wrapper []string `yaml:"wrapper,omitempty"`
	// GSettingsBackend overrides the settings backend; "keyfile" keeps
	// configuration reads isolated from any host-wide store.
	GSettingsBackend string `yaml:"gsettings_backend"`
	// KeyfileFixture is the settings key-file installed into the
	// isolated home before spawn.
	KeyfileFixture string `yaml:"keyfile_fixture,omitempty"`
	// ReadyTimeout bounds the wait for the readiness marker.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
	// ShutdownTimeout bounds the graceful shutdown wait.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BusConfig describes the private bus daemons.
type BusConfig struct {
	// DaemonBin is the message bus daemon binary.
	DaemonBin string `yaml:"daemon_bin"`
}

// MocksConfig describes how mock backends are launched.
type MocksConfig struct {
	// Launcher is the argv prefix that spawns a scripted backend for a
	// template identifier.
	Launcher []string `yaml:"launcher"`
	// Templates are the backends brought up at suite setup, in order.
	Templates []string `yaml:"templates"`
}

// DebugConfig describes the observability knobs passed to the shell.
type DebugConfig struct {
	// Categories is the debug-category allowlist, joined space
	// separated into the shell's environment.
	Categories []string `yaml:"categories"`
	// DesktopID is the desktop-identity hint.
	DesktopID string `yaml:"desktop_id"`
}

// WaitsConfig tunes the output assertion engine.
type WaitsConfig struct {
	// Timeout is the default bound for every blocking output wait.
	Timeout time.Duration `yaml:"timeout"`
	// Quantum is the sleep between transcript re-checks.
	Quantum time.Duration `yaml:"quantum"`
}
