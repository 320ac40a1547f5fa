package mockreg

import (
	"github.com/godbus/dbus/v5"

	"shelltest/internal/busctl"
)

// Template describes one known scripted mock backend. The backend process
// is a black box; the template only records how to launch it and where its
// control object appears on the bus.
type Template struct {
	// ID is the registry key, e.g. "modemmanager".
	ID string
	// Bus is which private bus the backend claims its name on.
	Bus busctl.Kind
	// BusName is the well-known name the backend owns once ready.
	BusName string
	// ObjectPath is where the control object lives.
	ObjectPath dbus.ObjectPath
}

// The template set mirrors the subsystems the shell integrates with: the
// short-range radio stack, its rfkill frontend, the cellular modem manager
// and the network manager.
var knownTemplates = map[string]Template{
	"bluez5": {
		ID:         "bluez5",
		Bus:        busctl.KindSystem,
		BusName:    "org.bluez",
		ObjectPath: "/",
	},
	"gsd_rfkill": {
		ID:         "gsd_rfkill",
		Bus:        busctl.KindSession,
		BusName:    "org.gnome.SettingsDaemon.Rfkill",
		ObjectPath: "/org/gnome/SettingsDaemon/Rfkill",
	},
	"modemmanager": {
		ID:         "modemmanager",
		Bus:        busctl.KindSystem,
		BusName:    "org.freedesktop.ModemManager1",
		ObjectPath: "/org/freedesktop/ModemManager1",
	},
	"networkmanager": {
		ID:         "networkmanager",
		Bus:        busctl.KindSystem,
		BusName:    "org.freedesktop.NetworkManager",
		ObjectPath: "/org/freedesktop/NetworkManager",
	},
}

// LookupTemplate returns the descriptor for a template identifier.
func LookupTemplate(id string) (Template, bool) {
	tmpl, ok := knownTemplates[id]
	return tmpl, ok
}

// TemplateIDs lists the known template identifiers.
func TemplateIDs() []string {
	ids := make([]string, 0, len(knownTemplates))
	for id := range knownTemplates {
		ids = append(ids, id)
	}
	return ids
}
