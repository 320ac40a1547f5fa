package mockreg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelltest/internal/busctl"
	"shelltest/internal/capture"
)

func TestLookupTemplate(t *testing.T) {
	tmpl, ok := LookupTemplate("modemmanager")
	require.True(t, ok)
	assert.Equal(t, busctl.KindSystem, tmpl.Bus)
	assert.Equal(t, "org.freedesktop.ModemManager1", tmpl.BusName)

	_, ok = LookupTemplate("toaster")
	assert.False(t, ok)
}

func TestTemplateIDs(t *testing.T) {
	ids := TemplateIDs()
	assert.ElementsMatch(t, []string{"bluez5", "gsd_rfkill", "modemmanager", "networkmanager"}, ids)
}

func TestStartFromTemplateRejectsDuplicateBeforeSpawn(t *testing.T) {
	r := NewRegistry([]string{"definitely-not-spawned"}, nil, nil)
	r.entries["modemmanager"] = &MockEntry{}

	_, err := r.StartFromTemplate(context.Background(), "modemmanager", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestStartFromTemplateUnknownTemplate(t *testing.T) {
	r := NewRegistry([]string{"definitely-not-spawned"}, nil, nil)

	_, err := r.StartFromTemplate(context.Background(), "toaster", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mock template")
}

// suiteBuses brings up a private system and session bus pair for tests
// that exercise real bus interaction.
func suiteBuses(t *testing.T) (*busctl.Manager, map[busctl.Kind]*busctl.Handle) {
	t.Helper()
	if _, err := exec.LookPath("dbus-daemon"); err != nil {
		t.Skip("dbus-daemon not available")
	}

	m := busctl.NewManager("", t.TempDir())
	t.Cleanup(func() { m.TearDownAll() })

	system, err := m.BringUp(context.Background(), busctl.KindSystem)
	require.NoError(t, err)
	session, err := m.BringUp(context.Background(), busctl.KindSession)
	require.NoError(t, err)

	return m, map[busctl.Kind]*busctl.Handle{
		busctl.KindSystem:  system,
		busctl.KindSession: session,
	}
}

func TestStartFromTemplateWaitsForName(t *testing.T) {
	buses, handles := suiteBuses(t)

	// Own the template's well-known name from the test itself; the
	// spawned process is then just a placeholder backend.
	conn, err := buses.Connect(handles[busctl.KindSystem])
	require.NoError(t, err)
	defer conn.Close()

	reply, err := conn.RequestName("org.bluez", dbus.NameFlagDoNotQueue)
	require.NoError(t, err)
	require.Equal(t, dbus.RequestNameReplyPrimaryOwner, reply)

	r := NewRegistry([]string{"sleep", "60"}, buses, handles)
	entry, err := r.StartFromTemplate(context.Background(), "bluez5", nil)
	require.NoError(t, err)
	assert.Equal(t, "bluez5", entry.Template.ID)
	assert.NotNil(t, entry.Control())

	// Second registration of the same identifier must fail loudly.
	_, err = r.StartFromTemplate(context.Background(), "bluez5", nil)
	require.Error(t, err)

	require.NoError(t, r.TearDown())
	assert.Nil(t, r.Get("bluez5"))
}

// stopRecorder writes a placeholder backend script that appends its
// template identifier to the file named by STOP_ORDER_FILE when it is
// terminated, so a test can observe the order backends actually stop in.
func stopRecorder(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recorder.sh")
	script := `#!/bin/sh
id=unknown
while [ $# -gt 0 ]; do
	if [ "$1" = "--template" ]; then shift; id="$1"; fi
	shift
done
trap 'echo "$id" >>"$STOP_ORDER_FILE"; exit 0' TERM
sleep 60 &
wait
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestTearDownReversesCreationOrder(t *testing.T) {
	buses, handles := suiteBuses(t)

	conn, err := buses.Connect(handles[busctl.KindSystem])
	require.NoError(t, err)
	defer conn.Close()
	for _, name := range []string{"org.bluez", "org.freedesktop.ModemManager1"} {
		reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
		require.NoError(t, err)
		require.Equal(t, dbus.RequestNameReplyPrimaryOwner, reply)
	}

	stopOrderFile := filepath.Join(t.TempDir(), "stop-order")
	t.Setenv("STOP_ORDER_FILE", stopOrderFile)

	r := NewRegistry([]string{stopRecorder(t)}, buses, handles)
	_, err = r.StartFromTemplate(context.Background(), "bluez5", nil)
	require.NoError(t, err)
	_, err = r.StartFromTemplate(context.Background(), "modemmanager", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bluez5", "modemmanager"}, r.Order())

	require.NoError(t, r.TearDown())
	assert.Empty(t, r.Order())

	data, err := os.ReadFile(stopOrderFile)
	require.NoError(t, err)
	stopped := strings.Fields(string(data))
	assert.Equal(t, []string{"modemmanager", "bluez5"}, stopped)
}

func TestStopProcessBoundedByLingeringChildren(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	// The backgrounded child inherits the capture pipe and outlives the
	// backend; stopping must still complete within the grace bounds.
	cap := capture.New()
	cmd := exec.Command("sh", "-c", "sleep 60 & exec sleep 60")
	cmd.WaitDelay = pipeWaitDelay
	cmd.Stdout = cap.Writer()
	cmd.Stderr = cap.Writer()
	require.NoError(t, cmd.Start())

	r := NewRegistry(nil, nil, nil)
	start := time.Now()
	require.NoError(t, r.stopProcess(cmd, cap))
	assert.Less(t, time.Since(start), stopTimeout)
}
