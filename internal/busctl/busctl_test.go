package busctl

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindEnvVar(t *testing.T) {
	assert.Equal(t, "DBUS_SYSTEM_BUS_ADDRESS", KindSystem.EnvVar())
	assert.Equal(t, "DBUS_SESSION_BUS_ADDRESS", KindSession.EnvVar())
}

func requireDBusDaemon(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("dbus-daemon"); err != nil {
		t.Skip("dbus-daemon not available")
	}
}

func TestBringUpAndTearDown(t *testing.T) {
	requireDBusDaemon(t)

	m := NewManager("", t.TempDir())
	handle, err := m.BringUp(context.Background(), KindSession)
	require.NoError(t, err)
	assert.Equal(t, KindSession, handle.Kind())
	assert.Contains(t, handle.Address(), "unix:path=")

	conn, err := m.Connect(handle)
	require.NoError(t, err)
	assert.NotEmpty(t, conn.Names())
	conn.Close()

	require.NoError(t, m.TearDownAll())
}

func TestBringUpBothKindsAreIsolated(t *testing.T) {
	requireDBusDaemon(t)

	m := NewManager("dbus-daemon", t.TempDir())
	defer m.TearDownAll()

	system, err := m.BringUp(context.Background(), KindSystem)
	require.NoError(t, err)
	session, err := m.BringUp(context.Background(), KindSession)
	require.NoError(t, err)

	assert.NotEqual(t, system.Address(), session.Address())
}

func TestBringUpFailsFatallyForBrokenDaemon(t *testing.T) {
	m := NewManager("definitely-not-a-bus-daemon", t.TempDir())
	_, err := m.BringUp(context.Background(), KindSystem)
	require.Error(t, err)
}
