// Package mockreg starts and tracks the scripted mock backends the suite
// drives. Each backend is an independent process claiming a well-known
// name on one of the private buses; the registry hands out typed control
// capabilities over that name and tears the backends down in strict
// reverse creation order.
package mockreg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"shelltest/internal/busctl"
	"shelltest/internal/capture"
	"shelltest/pkg/logging"
)

const subsystem = "mockreg"

// mockInterface is the control interface every backend exposes its
// scripted methods on.
const mockInterface = "org.freedesktop.DBus.Mock"

// Bounds on backend shutdown: the grace period after SIGTERM, and the
// time Wait may keep blocking on the capture pipe once the backend has
// exited.
const (
	stopTimeout   = 5 * time.Second
	pipeWaitDelay = 2 * time.Second
)

// MockEntry is one running mock backend, keyed by template identifier.
type MockEntry struct {
	Template Template

	cmd     *exec.Cmd
	capture *capture.Capture
	conn    *dbus.Conn
	control dbus.BusObject
}

// Control returns the backend's control object. It is the only supported
// way scenarios mutate the simulated subsystem state.
func (e *MockEntry) Control() dbus.BusObject {
	return e.control
}

// Conn returns the control connection to the backend's bus.
func (e *MockEntry) Conn() *dbus.Conn {
	return e.conn
}

// Capture returns the backend's own diagnostic output transcript.
func (e *MockEntry) Capture() *capture.Capture {
	return e.capture
}

// Registry owns the mock backends of one suite.
type Registry struct {
	launcher    []string
	buses       *busctl.Manager
	handles     map[busctl.Kind]*busctl.Handle
	nameTimeout time.Duration

	entries map[string]*MockEntry
	order   []string
}

// NewRegistry creates a registry that launches backends with the given
// launcher argv prefix (e.g. ["python3", "-m", "dbusmock"]) and connects
// their control objects over the given bus handles.
func NewRegistry(launcher []string, buses *busctl.Manager, handles map[busctl.Kind]*busctl.Handle) *Registry {
	return &Registry{
		launcher:    launcher,
		buses:       buses,
		handles:     handles,
		nameTimeout: 10 * time.Second,
		entries:     make(map[string]*MockEntry),
	}
}

// StartFromTemplate spawns the backend for the given template identifier
// and returns its entry once the control object is reachable. Registering
// the same identifier twice is an error detected before any process is
// spawned, so a usage bug can never leak a duplicate backend.
func (r *Registry) StartFromTemplate(ctx context.Context, id string, params map[string]interface{}) (*MockEntry, error) {
	if _, exists := r.entries[id]; exists {
		return nil, fmt.Errorf("mock template %q already registered", id)
	}

	tmpl, ok := LookupTemplate(id)
	if !ok {
		return nil, fmt.Errorf("unknown mock template %q", id)
	}

	handle, ok := r.handles[tmpl.Bus]
	if !ok {
		return nil, fmt.Errorf("no %s bus available for template %q", tmpl.Bus, id)
	}

	argv := append([]string{}, r.launcher...)
	if tmpl.Bus == busctl.KindSystem {
		argv = append(argv, "--system")
	} else {
		argv = append(argv, "--session")
	}
	argv = append(argv, "--template", id)
	if len(params) > 0 {
		blob, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode parameters for template %q: %w", id, err)
		}
		argv = append(argv, "--parameters", string(blob))
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// Bound the post-exit pipe drain: a backend's children inherit the
	// capture pipe and would otherwise keep Wait blocked after the
	// backend itself is gone.
	cmd.WaitDelay = pipeWaitDelay
	cmd.Env = os.Environ()
	for kind, h := range r.handles {
		cmd.Env = append(cmd.Env, kind.EnvVar()+"="+h.Address())
	}

	// Capture from the moment of spawn so a chatty backend can never
	// block the harness.
	cap := capture.New()
	cmd.Stdout = cap.Writer()
	cmd.Stderr = cap.Writer()

	if err := cmd.Start(); err != nil {
		cap.Close()
		return nil, fmt.Errorf("failed to spawn mock backend %q: %w", id, err)
	}

	conn, err := r.buses.Connect(handle)
	if err != nil {
		r.stopProcess(cmd, cap)
		return nil, fmt.Errorf("failed to reach %s bus for template %q: %w", tmpl.Bus, id, err)
	}

	if err := r.waitForName(ctx, conn, tmpl.BusName); err != nil {
		conn.Close()
		r.stopProcess(cmd, cap)
		return nil, fmt.Errorf("mock backend %q never claimed %s: %w", id, tmpl.BusName, err)
	}

	entry := &MockEntry{
		Template: tmpl,
		cmd:      cmd,
		capture:  cap,
		conn:     conn,
		control:  conn.Object(tmpl.BusName, tmpl.ObjectPath),
	}
	r.entries[id] = entry
	r.order = append(r.order, id)
	logging.Debug(subsystem, "mock %q up, owns %s on %s bus", id, tmpl.BusName, tmpl.Bus)

	return entry, nil
}

// waitForName polls until name has an owner on the bus.
func (r *Registry) waitForName(ctx context.Context, conn *dbus.Conn, name string) error {
	deadline := time.Now().Add(r.nameTimeout)
	for {
		var owned bool
		err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, name).Store(&owned)
		if err == nil && owned {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("name not owned within %v", r.nameTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Get returns a non-owning reference to a running entry, or nil.
func (r *Registry) Get(id string) *MockEntry {
	return r.entries[id]
}

// Order returns the template identifiers in creation order.
func (r *Registry) Order() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// TearDown terminates and waits on every backend in strict reverse
// creation order, each one fully stopped before the next.
func (r *Registry) TearDown() error {
	var firstErr error
	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		entry := r.entries[id]
		if entry == nil {
			continue
		}
		if entry.conn != nil {
			entry.conn.Close()
		}
		if err := r.stopProcess(entry.cmd, entry.capture); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop mock %q: %w", id, err)
		}
		delete(r.entries, id)
		logging.Debug(subsystem, "mock %q torn down", id)
	}
	r.order = nil
	return firstErr
}

// stopProcess terminates a backend and waits for it, then closes its
// capture.
func (r *Registry) stopProcess(cmd *exec.Cmd, cap *capture.Capture) error {
	defer cap.Close()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		cmd.Process.Kill()
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	// The grace bound includes the pipe drain allowance; after a kill the
	// reap is bounded again so a backend's stray children can never hang
	// suite teardown.
	select {
	case <-done:
		return nil
	case <-time.After(stopTimeout + pipeWaitDelay):
		cmd.Process.Kill()
		select {
		case <-done:
			return nil
		case <-time.After(2 * pipeWaitDelay):
			return fmt.Errorf("backend did not release its output after kill")
		}
	}
}
