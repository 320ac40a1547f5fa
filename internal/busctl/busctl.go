// Package busctl brings up private message bus instances so the suite
// never touches a host bus. Each bus is an independent dbus-daemon bound
// to a unix socket under the suite's temp directory; its address is
// exported into the environment of everything the suite spawns.
package busctl

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/godbus/dbus/v5"

	"shelltest/pkg/logging"
)

const subsystem = "busctl"

// Kind distinguishes the two buses the shell expects.
type Kind string

const (
	KindSystem  Kind = "system"
	KindSession Kind = "session"
)

// EnvVar returns the environment variable the shell reads this bus's
// address from.
func (k Kind) EnvVar() string {
	if k == KindSystem {
		return "DBUS_SYSTEM_BUS_ADDRESS"
	}
	return "DBUS_SESSION_BUS_ADDRESS"
}

// Handle is one owned private bus instance.
type Handle struct {
	kind    Kind
	address string
	cmd     *exec.Cmd
}

// Kind returns which bus this handle represents.
func (h *Handle) Kind() Kind {
	return h.kind
}

// Address returns the connection string for environment injection.
func (h *Handle) Address() string {
	return h.address
}

// Manager owns the private bus daemons of one suite.
type Manager struct {
	daemonBin   string
	dir         string
	waitTimeout time.Duration
	handles     []*Handle
}

// NewManager creates a bus manager that places bus sockets under dir.
// daemonBin is the bus daemon binary, usually "dbus-daemon".
func NewManager(daemonBin, dir string) *Manager {
	if daemonBin == "" {
		daemonBin = "dbus-daemon"
	}
	return &Manager{
		daemonBin:   daemonBin,
		dir:         dir,
		waitTimeout: 5 * time.Second,
	}
}

// BringUp starts an isolated bus of the given kind and returns its handle.
// A bus that cannot be started invalidates the whole suite, so the caller
// must treat an error as fatal; there is no retry.
func (m *Manager) BringUp(ctx context.Context, kind Kind) (*Handle, error) {
	socketPath := filepath.Join(m.dir, string(kind)+"_bus.sock")
	address := "unix:path=" + socketPath

	// Both kinds run with the session policy; isolation comes from the
	// private socket, not from system bus configuration.
	cmd := exec.CommandContext(ctx, m.daemonBin,
		"--session",
		"--nofork",
		"--address="+address,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s bus daemon: %w", kind, err)
	}

	if err := m.waitForSocket(ctx, socketPath); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, fmt.Errorf("%s bus did not come up: %w", kind, err)
	}

	handle := &Handle{kind: kind, address: address, cmd: cmd}
	m.handles = append(m.handles, handle)
	logging.Debug(subsystem, "%s bus up at %s", kind, address)

	return handle, nil
}

// waitForSocket polls for the bus socket with a bounded timeout.
func (m *Manager) waitForSocket(ctx context.Context, path string) error {
	deadline := time.Now().Add(m.waitTimeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("socket %s not created within %v", path, m.waitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Connect opens a control connection to the bus for driving mock objects.
// The caller owns the returned connection.
func (m *Manager) Connect(handle *Handle) (*dbus.Conn, error) {
	conn, err := dbus.Connect(handle.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", handle.kind, err)
	}
	return conn, nil
}

// TearDown stops one bus daemon. Calling it while dependents still use the
// bus is a usage error the suite ordering prevents, not a condition this
// recovers from.
func (m *Manager) TearDown(handle *Handle) error {
	if handle.cmd == nil || handle.cmd.Process == nil {
		return nil
	}
	if err := handle.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to stop %s bus daemon: %w", handle.kind, err)
	}
	handle.cmd.Wait()
	handle.cmd = nil
	logging.Debug(subsystem, "%s bus torn down", handle.kind)
	return nil
}

// TearDownAll stops every bus in reverse creation order.
func (m *Manager) TearDownAll() error {
	var firstErr error
	for i := len(m.handles) - 1; i >= 0; i-- {
		if err := m.TearDown(m.handles[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.handles = nil
	return firstErr
}
