// Package shellproc launches the shell under test as a child process and
// manages its nested session lifecycle. The shell is an opaque external
// collaborator: it is handed an assembled environment and observed only
// through its combined output transcript and its exit state.
package shellproc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"
	"time"

	"shelltest/internal/capture"
	"shelltest/pkg/logging"
)

const subsystem = "shellproc"

// Severity markers in the structured log format the shell emits.
const (
	criticalMarker = "-CRITICAL **:"
	warningMarker  = "-WARNING **:"
)

// readyMarker is the line fragment the shell prints once the nested
// session is up.
const defaultReadyMarker = "ready after"

// pipeWaitDelay bounds how long Wait may keep blocking on the output
// pipe after the shell itself has exited. Descendants spawned by a
// wrapper inherit the pipe and hold it open past the shell's death;
// without the delay Wait would not return until every one of them
// exits.
const pipeWaitDelay = 2 * time.Second

// displayRe extracts the nested display name from the compositor output.
var displayRe = regexp.MustCompile(`Running compositor on wayland display '(wayland-[0-9]+)'`)

// Options configure one shell controller.
type Options struct {
	// Argv is the shell command.
	Argv []string
	// Wrapper is an optional command prefix interposing hardware
	// emulation at the process level.
	Wrapper []string
	// HomeDir is the isolated per-suite home directory.
	HomeDir string
	// Env are extra variables merged over the inherited environment:
	// bus addresses, testbed root, debug-category allowlist, desktop
	// identity.
	Env map[string]string
	// GSettingsBackend overrides the settings backend so configuration
	// reads from an isolated key-file, never a host-wide store.
	GSettingsBackend string
	// ReadyMarker overrides the readiness line fragment.
	ReadyMarker string
	// ReadyTimeout bounds the wait for the readiness marker.
	ReadyTimeout time.Duration
	// ShutdownTimeout bounds the wait for graceful exit.
	ShutdownTimeout time.Duration
}

// Controller owns the spawned shell process.
type Controller struct {
	opts Options
	cmd  *exec.Cmd
	cap  *capture.Capture

	display  string
	spawned  bool
	waitDone chan error
}

// New creates a controller. Nothing is spawned yet.
func New(opts Options) *Controller {
	if opts.ReadyMarker == "" {
		opts.ReadyMarker = defaultReadyMarker
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Controller{opts: opts}
}

// Capture returns the shell's combined output transcript.
func (c *Controller) Capture() *capture.Capture {
	return c.cap
}

// Display returns the nested display name discovered at spawn.
func (c *Controller) Display() string {
	return c.display
}

// HomeDir returns the isolated home directory.
func (c *Controller) HomeDir() string {
	return c.opts.HomeDir
}

// InstallKeyfile copies a key-file settings fixture into the isolated
// home so the overridden settings backend picks it up at startup. A
// pre-existing user-config-root override would defeat the isolation, so
// its absence is asserted first.
func (c *Controller) InstallKeyfile(fixturePath string) error {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return fmt.Errorf("XDG_CONFIG_HOME is set to %q; refusing to install isolated settings", v)
	}

	keyfileDir := filepath.Join(c.opts.HomeDir, ".config", "glib-2.0", "settings")
	if err := os.MkdirAll(keyfileDir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	src, err := os.Open(fixturePath)
	if err != nil {
		return fmt.Errorf("failed to open settings fixture: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(keyfileDir, filepath.Base(fixturePath)))
	if err != nil {
		return fmt.Errorf("failed to create settings key-file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy settings fixture: %w", err)
	}
	return nil
}

// displayBackend picks the nested display backend from the inherited
// environment, falling back to headless.
func displayBackend() string {
	switch {
	case os.Getenv("WLR_BACKENDS") != "":
		return os.Getenv("WLR_BACKENDS")
	case os.Getenv("WAYLAND_DISPLAY") != "":
		return "wayland"
	case os.Getenv("DISPLAY") != "":
		return "x11"
	default:
		return "headless"
	}
}

// assembleEnv merges the configured variables over the inherited
// environment in deterministic order.
func (c *Controller) assembleEnv() []string {
	env := os.Environ()
	env = append(env,
		"HOME="+c.opts.HomeDir,
		"WLR_BACKENDS="+displayBackend(),
	)
	if c.opts.GSettingsBackend != "" {
		env = append(env, "GSETTINGS_BACKEND="+c.opts.GSettingsBackend)
	}

	keys := make([]string, 0, len(c.opts.Env))
	for k := range c.opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.opts.Env[k])
	}
	return env
}

// SpawnNested launches the shell inside a nested session and blocks until
// it reports readiness and a nested display has been discovered. Failing
// to establish the nested session fails the suite.
func (c *Controller) SpawnNested(ctx context.Context) error {
	if c.spawned {
		return fmt.Errorf("shell already spawned")
	}
	if len(c.opts.Argv) == 0 {
		return fmt.Errorf("no shell command configured")
	}

	argv := append(append([]string{}, c.opts.Wrapper...), c.opts.Argv...)
	c.cmd = exec.Command(argv[0], argv[1:]...)
	c.cmd.Env = c.assembleEnv()
	c.cmd.WaitDelay = pipeWaitDelay

	c.cap = capture.New()
	c.cmd.Stdout = c.cap.Writer()
	c.cmd.Stderr = c.cap.Writer()

	logging.Debug(subsystem, "spawning shell: %s", strings.Join(argv, " "))
	if err := c.cmd.Start(); err != nil {
		c.cap.Close()
		return fmt.Errorf("failed to spawn shell: %w", err)
	}
	c.spawned = true

	c.waitDone = make(chan error, 1)
	go func() {
		c.waitDone <- c.cmd.Wait()
	}()

	err := c.cap.WaitForOutput(ctx, c.opts.ReadyMarker, capture.WaitOptions{
		IgnorePresent: true,
		Timeout:       c.opts.ReadyTimeout,
	})
	if err != nil {
		c.TeardownNested()
		return fmt.Errorf("shell never became ready: %w", err)
	}

	if err := c.findDisplay(); err != nil {
		c.TeardownNested()
		return err
	}

	logging.Info(subsystem, "shell ready on display %s", c.display)
	return nil
}

// findDisplay scans the transcript for the nested display announcement.
func (c *Controller) findDisplay() error {
	for _, line := range c.cap.Lines() {
		if m := displayRe.FindStringSubmatch(line); m != nil {
			c.display = m[1]
			return nil
		}
	}
	return fmt.Errorf("failed to find nested display in shell output")
}

// TeardownNested requests graceful shutdown and reports whether the shell
// exited by the termination signal. Shutdown failure is a test result the
// caller asserts on, not a harness fault, so no error is raised here.
func (c *Controller) TeardownNested() bool {
	if !c.spawned || c.cmd == nil || c.cmd.Process == nil {
		return false
	}
	defer func() {
		c.cap.Close()
		c.spawned = false
	}()

	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logging.Warn(subsystem, "failed to signal shell: %v", err)
		c.cmd.Process.Kill()
		c.awaitReap()
		return false
	}

	// The verdict bound covers the shutdown grace plus the pipe drain
	// allowance, so a shell that exits by the signal promptly is never
	// misread as a hang just because a descendant still holds the pipe.
	select {
	case err := <-c.waitDone:
		return exitedBySigterm(err)
	case <-time.After(c.opts.ShutdownTimeout + pipeWaitDelay):
		logging.Warn(subsystem, "shell ignored termination, killing")
		c.cmd.Process.Kill()
		c.awaitReap()
		return false
	}
}

// awaitReap drains the wait goroutine after a kill, bounded: WaitDelay
// already forces Wait to return shortly after the process dies, so a
// longer stall means the reap itself is stuck and teardown moves on.
func (c *Controller) awaitReap() {
	select {
	case <-c.waitDone:
	case <-time.After(2 * pipeWaitDelay):
		logging.Warn(subsystem, "shell process reap did not complete")
	}
}

// exitedBySigterm reports whether a Wait error corresponds to a clean
// SIGTERM exit.
func exitedBySigterm(err error) bool {
	if err == nil {
		// Exited zero on its own; that is not the graceful shutdown
		// contract.
		return false
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return false
	}
	return status.Signaled() && status.Signal() == syscall.SIGTERM
}

// Criticals returns the critical-severity lines of the full transcript.
// Any critical line makes the suite untrustworthy.
func (c *Controller) Criticals() []string {
	return c.classify(criticalMarker)
}

// Warnings returns the warning-severity lines of the full transcript.
// Warnings are reported but non-fatal.
func (c *Controller) Warnings() []string {
	return c.classify(warningMarker)
}

func (c *Controller) classify(marker string) []string {
	if c.cap == nil {
		return nil
	}
	var out []string
	for _, line := range c.cap.Lines() {
		if strings.Contains(line, marker) {
			out = append(out, line)
		}
	}
	return out
}
