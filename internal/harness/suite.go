// Package harness owns the suite-level context of one test run: the
// private buses, the fabricated device tree, the mock backends and the
// shell under test, with strictly ordered setup and reverse-ordered
// teardown. Scenarios receive the context by reference; nothing here is
// ambient process state.
package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"shelltest/internal/busctl"
	"shelltest/internal/capture"
	"shelltest/internal/config"
	"shelltest/internal/devicetree"
	"shelltest/internal/mockreg"
	"shelltest/internal/shellproc"
	"shelltest/pkg/logging"
)

const subsystem = "harness"

// Expected fabricated device paths. The testbed's path construction is
// part of the emulation contract; a mismatch means the emulation layer
// regressed, not the test.
const (
	torchSyspath     = "/sys/devices/white:flash"
	backlightSyspath = "/sys/devices/intel_backlight"
)

// Suite owns every suite-level resource exclusively. It is created by the
// runner, passed by reference to scenarios, and torn down exactly once.
type Suite struct {
	cfg config.Config
	dir string

	buses      *busctl.Manager
	busHandles map[busctl.Kind]*busctl.Handle

	testbed       *devicetree.Testbed
	torchPath     string
	backlightPath string

	registry *mockreg.Registry

	shell       *shellproc.Controller
	sessionConn *dbus.Conn
}

// NewSuite creates an un-started suite for the given configuration.
func NewSuite(cfg config.Config) *Suite {
	return &Suite{cfg: cfg}
}

// Suite makes *Suite satisfy the Lifecycle interface.
func (s *Suite) Suite() *Suite {
	return s
}

// Setup brings the suite up in strict order: buses, testbed, mocks,
// environment assembly, shell spawn. Each later step depends on values
// produced by earlier ones. A failure anywhere aborts with the partial
// state torn down; there is no retry, a broken environment invalidates
// every scenario.
func (s *Suite) Setup(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			s.teardownResources()
		}
	}()

	s.dir, err = os.MkdirTemp("", "shelltest-"+uuid.NewString()[:8]+"-*")
	if err != nil {
		return fmt.Errorf("failed to create suite directory: %w", err)
	}

	if err = s.setupBuses(ctx); err != nil {
		return err
	}
	if err = s.setupTestbed(); err != nil {
		return err
	}
	if err = s.setupMocks(ctx); err != nil {
		return err
	}
	if err = s.spawnShell(ctx); err != nil {
		return err
	}

	s.sessionConn, err = s.buses.Connect(s.busHandles[busctl.KindSession])
	if err != nil {
		return fmt.Errorf("failed to open session control connection: %w", err)
	}

	logging.Info(subsystem, "suite up in %s", s.dir)
	return nil
}

func (s *Suite) setupBuses(ctx context.Context) error {
	s.buses = busctl.NewManager(s.cfg.Bus.DaemonBin, s.dir)
	s.busHandles = make(map[busctl.Kind]*busctl.Handle)

	for _, kind := range []busctl.Kind{busctl.KindSystem, busctl.KindSession} {
		handle, err := s.buses.BringUp(ctx, kind)
		if err != nil {
			return fmt.Errorf("suite setup aborted: %w", err)
		}
		s.busHandles[kind] = handle
	}
	return nil
}

// setupTestbed fabricates the torch and backlight device nodes the shell
// discovers at startup, asserting the deterministic paths.
func (s *Suite) setupTestbed() error {
	var err error
	s.testbed, err = devicetree.New(filepath.Join(s.dir, "devices"))
	if err != nil {
		return fmt.Errorf("suite setup aborted: %w", err)
	}

	s.torchPath, err = s.testbed.AddDevice("leds", "white:flash", "",
		devicetree.Pairs(
			"brightness", "0",
			"max_brightness", "255",
		),
		devicetree.Pairs("GM_TORCH_MIN_BRIGHTNESS", "1"))
	if err != nil {
		return fmt.Errorf("suite setup aborted: %w", err)
	}
	if s.torchPath != torchSyspath {
		return fmt.Errorf("torch device path %q does not match expected %q", s.torchPath, torchSyspath)
	}

	s.backlightPath, err = s.testbed.AddDevice("backlight", "intel_backlight", "",
		devicetree.Pairs(
			"actual_brightness", "76255",
			"brightness", "76255",
			"max_brightness", "19200",
			"scale", "unknown",
			"type", "raw",
		), nil)
	if err != nil {
		return fmt.Errorf("suite setup aborted: %w", err)
	}
	if s.backlightPath != backlightSyspath {
		return fmt.Errorf("backlight device path %q does not match expected %q", s.backlightPath, backlightSyspath)
	}
	return nil
}

func (s *Suite) setupMocks(ctx context.Context) error {
	s.registry = mockreg.NewRegistry(s.cfg.Mocks.Launcher, s.buses, s.busHandles)
	for _, id := range s.cfg.Mocks.Templates {
		if _, err := s.registry.StartFromTemplate(ctx, id, nil); err != nil {
			return fmt.Errorf("suite setup aborted: %w", err)
		}
	}
	return nil
}

func (s *Suite) spawnShell(ctx context.Context) error {
	homeDir := filepath.Join(s.dir, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create isolated home: %w", err)
	}

	env := map[string]string{
		busctl.KindSystem.EnvVar():  s.busHandles[busctl.KindSystem].Address(),
		busctl.KindSession.EnvVar(): s.busHandles[busctl.KindSession].Address(),
		"UMOCKDEV_DIR":              s.testbed.Root(),
		"G_MESSAGES_DEBUG":          strings.Join(s.cfg.Debug.Categories, " "),
		"XDG_CURRENT_DESKTOP":       s.cfg.Debug.DesktopID,
	}

	s.shell = shellproc.New(shellproc.Options{
		Argv:             s.cfg.Shell.Argv,
		Wrapper:          s.cfg.Shell.Wrapper,
		HomeDir:          homeDir,
		Env:              env,
		GSettingsBackend: s.cfg.Shell.GSettingsBackend,
		ReadyTimeout:     s.cfg.Shell.ReadyTimeout,
		ShutdownTimeout:  s.cfg.Shell.ShutdownTimeout,
	})

	if s.cfg.Shell.KeyfileFixture != "" {
		if err := s.shell.InstallKeyfile(s.cfg.Shell.KeyfileFixture); err != nil {
			return fmt.Errorf("suite setup aborted: %w", err)
		}
	}

	if err := s.shell.SpawnNested(ctx); err != nil {
		return fmt.Errorf("suite setup aborted: %w", err)
	}
	return nil
}

// Teardown reverses setup: shell first, then mocks, then buses. Shutdown
// cleanliness and leftover severity classification are reported for the
// runner to judge; a dirty shutdown or leftover criticals fail the suite
// even when every scenario passed.
func (s *Suite) Teardown() TeardownReport {
	report := TeardownReport{CleanShutdown: true}

	if s.shell != nil {
		report.CleanShutdown = s.shell.TeardownNested()
		report.Criticals = s.shell.Criticals()
		report.Warnings = s.shell.Warnings()
	}

	report.Err = s.teardownResources()
	return report
}

// teardownResources stops everything below the shell in reverse creation
// order. Also used to unwind a partially completed setup.
func (s *Suite) teardownResources() error {
	var firstErr error

	if s.sessionConn != nil {
		s.sessionConn.Close()
		s.sessionConn = nil
	}
	if s.shell != nil {
		// Already stopped on the normal path; TeardownNested on a
		// stopped controller is a no-op.
		s.shell.TeardownNested()
	}
	if s.registry != nil {
		if err := s.registry.TearDown(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.registry = nil
	}
	if s.buses != nil {
		if err := s.buses.TearDownAll(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.buses = nil
	}
	if s.dir != "" {
		if err := os.RemoveAll(s.dir); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to remove suite directory: %w", err)
		}
		s.dir = ""
	}
	return firstErr
}

// Mock returns a non-owning reference to a running mock backend, or nil.
func (s *Suite) Mock(id string) *mockreg.MockEntry {
	if s.registry == nil {
		return nil
	}
	return s.registry.Get(id)
}

// Shell returns the shell controller.
func (s *Suite) Shell() *shellproc.Controller {
	return s.shell
}

// Testbed returns the fabricated device tree.
func (s *Suite) Testbed() *devicetree.Testbed {
	return s.testbed
}

// TorchPath returns the fabricated torch device path.
func (s *Suite) TorchPath() string {
	return s.torchPath
}

// BacklightPath returns the fabricated backlight device path.
func (s *Suite) BacklightPath() string {
	return s.backlightPath
}

// SessionConn returns the suite's control connection to the session bus,
// for administrative calls against the running shell itself.
func (s *Suite) SessionConn() *dbus.Conn {
	return s.sessionConn
}

// CheckForOutput reports whether pattern already occurred in the shell
// transcript. Non-blocking.
func (s *Suite) CheckForOutput(pattern string) bool {
	return s.shell.Capture().CheckForOutput(pattern)
}

// WaitForOutput blocks until a new occurrence of pattern appears, bounded
// by the configured wait timeout.
func (s *Suite) WaitForOutput(ctx context.Context, pattern string) error {
	return s.shell.Capture().WaitForOutput(ctx, pattern, capture.WaitOptions{
		Timeout: s.cfg.Waits.Timeout,
		Quantum: s.cfg.Waits.Quantum,
	})
}

// WaitForOutputIgnorePresent is WaitForOutput but a match that already
// exists satisfies the wait immediately.
func (s *Suite) WaitForOutputIgnorePresent(ctx context.Context, pattern string) error {
	return s.shell.Capture().WaitForOutput(ctx, pattern, capture.WaitOptions{
		IgnorePresent: true,
		Timeout:       s.cfg.Waits.Timeout,
		Quantum:       s.cfg.Waits.Quantum,
	})
}

// Brightness interface of the running shell, used for direct
// administrative calls outside the mock API.
const (
	shellBusName         = "org.gnome.Shell"
	brightnessObjectPath = "/org/gnome/Shell/Brightness"
	brightnessInterface  = "org.gnome.Shell.Brightness"
)

// SetDimming flips the shell's display-dimming flag over the session bus.
func (s *Suite) SetDimming(enable bool) error {
	obj := s.sessionConn.Object(shellBusName, dbus.ObjectPath(brightnessObjectPath))
	if call := obj.Call(brightnessInterface+".SetDimming", 0, enable); call.Err != nil {
		return fmt.Errorf("SetDimming failed: %w", call.Err)
	}
	return nil
}
