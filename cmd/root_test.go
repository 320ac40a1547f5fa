package cmd

import (
	"testing"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	SetVersion(testVersion)

	if rootCmd.Version != testVersion {
		t.Errorf("Expected version to be %s, got %s", testVersion, rootCmd.Version)
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "shelltest" {
		t.Errorf("Expected Use to be 'shelltest', got %s", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}

	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	expected := map[string]bool{"run": false, "list": false, "version": false}
	for _, sub := range rootCmd.Commands() {
		if _, ok := expected[sub.Name()]; ok {
			expected[sub.Name()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("Expected subcommand %q to be registered", name)
		}
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := newRunCmd()
	for _, flag := range []string{"config", "scenario", "fail-fast", "verbose", "report", "scenario-timeout"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("Expected run command to have flag %q", flag)
		}
	}
}
