package shellproc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeShell writes a shell script standing in for the SUT and returns its
// path.
func fakeShell(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-shell.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const readyBody = `echo "Running compositor on wayland display 'wayland-1'"
echo "shell: ready after 123ms"
exec sleep 60`

func TestSpawnNestedAndGracefulTeardown(t *testing.T) {
	shell := fakeShell(t, readyBody)
	c := New(Options{
		Argv:         []string{shell},
		HomeDir:      t.TempDir(),
		ReadyTimeout: 10 * time.Second,
	})

	require.NoError(t, c.SpawnNested(context.Background()))
	assert.Equal(t, "wayland-1", c.Display())
	assert.True(t, c.Capture().CheckForOutput("ready after"))

	assert.True(t, c.TeardownNested())
	assert.Empty(t, c.Criticals())
}

func TestTeardownNestedWithLingeringDescendant(t *testing.T) {
	// A wrapper-spawned helper inherits the output pipe and outlives the
	// shell. The verdict must still be the shell's own exit signal, and
	// teardown must return promptly instead of waiting for the helper to
	// release the pipe.
	shell := fakeShell(t, `echo "Running compositor on wayland display 'wayland-3'"
echo "shell: ready after 7ms"
sleep 60 &
exec sleep 60`)
	c := New(Options{
		Argv:            []string{shell},
		HomeDir:         t.TempDir(),
		ReadyTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	})

	require.NoError(t, c.SpawnNested(context.Background()))

	start := time.Now()
	assert.True(t, c.TeardownNested())
	assert.Less(t, time.Since(start), c.opts.ShutdownTimeout,
		"teardown blocked on a descendant holding the output pipe")
}

func TestSpawnNestedWithWrapper(t *testing.T) {
	shell := fakeShell(t, readyBody)
	c := New(Options{
		Argv:         []string{shell},
		Wrapper:      []string{"env"},
		HomeDir:      t.TempDir(),
		ReadyTimeout: 10 * time.Second,
	})

	require.NoError(t, c.SpawnNested(context.Background()))
	assert.True(t, c.TeardownNested())
}

func TestSpawnNestedFailsWithoutReadiness(t *testing.T) {
	shell := fakeShell(t, `echo "starting up"
exec sleep 60`)
	c := New(Options{
		Argv:         []string{shell},
		HomeDir:      t.TempDir(),
		ReadyTimeout: 500 * time.Millisecond,
	})

	err := c.SpawnNested(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never became ready")
}

func TestSpawnNestedFailsWithoutDisplay(t *testing.T) {
	shell := fakeShell(t, `echo "shell: ready after 5ms"
exec sleep 60`)
	c := New(Options{
		Argv:         []string{shell},
		HomeDir:      t.TempDir(),
		ReadyTimeout: 10 * time.Second,
	})

	err := c.SpawnNested(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested display")
}

func TestTeardownNestedReportsDirtyExit(t *testing.T) {
	// A shell that swallows the termination signal and exits zero does
	// not meet the graceful shutdown contract.
	shell := fakeShell(t, `trap "exit 0" TERM
echo "Running compositor on wayland display 'wayland-2'"
echo "shell: ready after 9ms"
while true; do sleep 1; done`)
	c := New(Options{
		Argv:            []string{shell},
		HomeDir:         t.TempDir(),
		ReadyTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	})

	require.NoError(t, c.SpawnNested(context.Background()))
	assert.False(t, c.TeardownNested())
}

func TestSeverityClassification(t *testing.T) {
	shell := fakeShell(t, readyBody+`
`)
	c := New(Options{
		Argv:         []string{shell},
		HomeDir:      t.TempDir(),
		ReadyTimeout: 10 * time.Second,
	})
	require.NoError(t, c.SpawnNested(context.Background()))
	defer c.TeardownNested()

	// Feed classified lines through the same transcript the process
	// writes to.
	cap := c.Capture()
	cap.Writer().Write([]byte("shell-wifi-CRITICAL **: scan state confused\n"))
	cap.Writer().Write([]byte("shell-bt-WARNING **: adapter flaky\n"))
	cap.Writer().Write([]byte("shell-bt: BT enabled: 1\n"))

	require.Eventually(t, func() bool {
		return len(c.Warnings()) == 1
	}, time.Second, 10*time.Millisecond)

	crits := c.Criticals()
	require.Len(t, crits, 1)
	assert.Contains(t, crits[0], "scan state confused")

	warns := c.Warnings()
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "adapter flaky")
}

func TestInstallKeyfile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	os.Unsetenv("XDG_CONFIG_HOME")

	fixture := filepath.Join(t.TempDir(), "keyfile")
	require.NoError(t, os.WriteFile(fixture, []byte("[org/example]\nidle-dim=true\n"), 0o644))

	home := t.TempDir()
	c := New(Options{Argv: []string{"true"}, HomeDir: home})
	require.NoError(t, c.InstallKeyfile(fixture))

	data, err := os.ReadFile(filepath.Join(home, ".config", "glib-2.0", "settings", "keyfile"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "idle-dim=true")
}

func TestInstallKeyfileRefusesConfigHomeOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/somewhere/else")

	c := New(Options{Argv: []string{"true"}, HomeDir: t.TempDir()})
	err := c.InstallKeyfile("keyfile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XDG_CONFIG_HOME")
}
