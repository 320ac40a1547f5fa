// Package config provides the layered suite configuration: built-in
// defaults overlaid with an optional YAML file, later values overriding
// earlier ones.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load returns the defaults merged with the YAML file at path. An empty
// path yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error loading suite config from %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("error parsing suite config from %s: %w", path, err)
	}

	return merge(cfg, overlay), nil
}

// merge overlays 'overlay' onto 'base'; zero values in the overlay keep
// the base value.
func merge(base, overlay Config) Config {
	merged := base

	if len(overlay.Shell.Argv) > 0 {
		merged.Shell.Argv = overlay.Shell.Argv
	}
	if len(overlay.Shell.Wrapper) > 0 {
		merged.Shell.Wrapper = overlay.Shell.Wrapper
	}
	if overlay.Shell.GSettingsBackend != "" {
		merged.Shell.GSettingsBackend = overlay.Shell.GSettingsBackend
	}
	if overlay.Shell.KeyfileFixture != "" {
		merged.Shell.KeyfileFixture = overlay.Shell.KeyfileFixture
	}
	if overlay.Shell.ReadyTimeout != 0 {
		merged.Shell.ReadyTimeout = overlay.Shell.ReadyTimeout
	}
	if overlay.Shell.ShutdownTimeout != 0 {
		merged.Shell.ShutdownTimeout = overlay.Shell.ShutdownTimeout
	}

	if overlay.Bus.DaemonBin != "" {
		merged.Bus.DaemonBin = overlay.Bus.DaemonBin
	}

	if len(overlay.Mocks.Launcher) > 0 {
		merged.Mocks.Launcher = overlay.Mocks.Launcher
	}
	if len(overlay.Mocks.Templates) > 0 {
		merged.Mocks.Templates = overlay.Mocks.Templates
	}

	if len(overlay.Debug.Categories) > 0 {
		merged.Debug.Categories = overlay.Debug.Categories
	}
	if overlay.Debug.DesktopID != "" {
		merged.Debug.DesktopID = overlay.Debug.DesktopID
	}

	if overlay.Waits.Timeout != 0 {
		merged.Waits.Timeout = overlay.Waits.Timeout
	}
	if overlay.Waits.Quantum != 0 {
		merged.Waits.Quantum = overlay.Waits.Quantum
	}

	return merged
}

// Validate checks a loaded configuration for the mistakes that would
// otherwise only surface mid-suite.
func Validate(cfg Config) error {
	if len(cfg.Shell.Argv) == 0 {
		return fmt.Errorf("shell.argv must name the shell command")
	}
	if cfg.Waits.Timeout <= 0 {
		return fmt.Errorf("waits.timeout must be positive")
	}
	if cfg.Waits.Quantum <= 0 {
		return fmt.Errorf("waits.quantum must be positive")
	}
	if len(cfg.Mocks.Launcher) == 0 {
		return fmt.Errorf("mocks.launcher must not be empty")
	}
	for _, id := range cfg.Mocks.Templates {
		if id == "" {
			return fmt.Errorf("mocks.templates must not contain empty identifiers")
		}
	}
	return nil
}
