package mockreg

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// NetworkManager wire constants, as the network backend expects them.
type (
	// DeviceState is the NM device state enumeration.
	DeviceState uint32
	// InfrastructureMode is the 802.11 operating mode.
	InfrastructureMode uint32
	// APSecurityFlags are the access point security capability flags.
	APSecurityFlags uint32
)

const (
	DeviceStateActivated DeviceState = 100

	ModeInfra InfrastructureMode = 2

	APSecKeyMgmtPSK APSecurityFlags = 0x100
)

// ConnectionSettings is a nested connection settings document, keyed by
// settings group then by key.
type ConnectionSettings map[string]map[string]dbus.Variant

// ModemControl is the capability surface of the cellular modem backend.
type ModemControl struct {
	entry *MockEntry
}

// Modem wraps a modemmanager entry in its typed capability.
func Modem(entry *MockEntry) *ModemControl {
	return &ModemControl{entry: entry}
}

// AddSimpleModem registers a preconfigured modem on the backend.
func (c *ModemControl) AddSimpleModem() error {
	call := c.entry.Control().Call(mockInterface+".AddSimpleModem", 0)
	if call.Err != nil {
		return fmt.Errorf("AddSimpleModem failed: %w", call.Err)
	}
	return nil
}

// AddCbm simulates an incoming cell broadcast message with the given
// channel number and text payload.
func (c *ModemControl) AddCbm(state uint32, channel uint32, text string) error {
	call := c.entry.Control().Call(mockInterface+".AddCbm", 0, state, channel, text)
	if call.Err != nil {
		return fmt.Errorf("AddCbm failed: %w", call.Err)
	}
	return nil
}

// NetworkControl is the capability surface of the network manager backend.
type NetworkControl struct {
	entry *MockEntry
}

// Network wraps a networkmanager entry in its typed capability.
func Network(entry *MockEntry) *NetworkControl {
	return &NetworkControl{entry: entry}
}

// AddWiFiDevice registers a Wi-Fi device and returns its object path.
func (c *NetworkControl) AddWiFiDevice(deviceName, ifaceName string, state DeviceState) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	err := c.entry.Control().Call(mockInterface+".AddWiFiDevice", 0,
		deviceName, ifaceName, uint32(state)).Store(&path)
	if err != nil {
		return "", fmt.Errorf("AddWiFiDevice failed: %w", err)
	}
	return path, nil
}

// AddAccessPoint registers an access point on a Wi-Fi device.
func (c *NetworkControl) AddAccessPoint(device dbus.ObjectPath, apName, ssid, hwAddress string,
	mode InfrastructureMode, frequency, rate uint32, strength byte, security APSecurityFlags) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	err := c.entry.Control().Call(mockInterface+".AddAccessPoint", 0,
		device, apName, ssid, hwAddress, uint32(mode), frequency, rate, strength, uint32(security)).Store(&path)
	if err != nil {
		return "", fmt.Errorf("AddAccessPoint failed: %w", err)
	}
	return path, nil
}

// settingsObjectPath is where the network backend exposes its settings
// service.
const (
	settingsObjectPath = "/org/freedesktop/NetworkManager/Settings"
	settingsInterface  = "org.freedesktop.NetworkManager.Settings"
)

// AddConnection adds a network connection profile through the backend's
// settings interface and returns the new profile path. The settings
// document is an arbitrary nested key/value structure, covering VPN,
// wireguard and cellular connection types alike.
func (c *NetworkControl) AddConnection(settings ConnectionSettings) (dbus.ObjectPath, error) {
	obj := c.entry.Conn().Object(c.entry.Template.BusName, settingsObjectPath)

	var path dbus.ObjectPath
	err := obj.Call(settingsInterface+".AddConnection", 0, map[string]map[string]dbus.Variant(settings)).Store(&path)
	if err != nil {
		return "", fmt.Errorf("AddConnection failed: %w", err)
	}
	return path, nil
}

// rfkillInterface is the property interface of the rfkill frontend
// backend.
const rfkillInterface = "org.gnome.SettingsDaemon.Rfkill"

// RfkillControl is the capability surface of the rfkill frontend backend.
// The backend is state only; it exposes no methods beyond its properties.
type RfkillControl struct {
	entry *MockEntry
}

// Rfkill wraps a gsd_rfkill entry in its typed capability.
func Rfkill(entry *MockEntry) *RfkillControl {
	return &RfkillControl{entry: entry}
}

// AirplaneMode reads the backend's airplane mode flag.
func (c *RfkillControl) AirplaneMode() (bool, error) {
	variant, err := c.entry.Control().GetProperty(rfkillInterface + ".AirplaneMode")
	if err != nil {
		return false, fmt.Errorf("failed to read AirplaneMode: %w", err)
	}
	enabled, ok := variant.Value().(bool)
	if !ok {
		return false, fmt.Errorf("AirplaneMode has unexpected type %T", variant.Value())
	}
	return enabled, nil
}

// SetAirplaneMode writes the backend's airplane mode flag.
func (c *RfkillControl) SetAirplaneMode(enable bool) error {
	if err := c.entry.Control().SetProperty(rfkillInterface+".AirplaneMode", dbus.MakeVariant(enable)); err != nil {
		return fmt.Errorf("failed to set AirplaneMode: %w", err)
	}
	return nil
}

// BluetoothControl is the capability surface of the short-range radio
// backend.
type BluetoothControl struct {
	entry *MockEntry
}

// Bluetooth wraps a bluez5 entry in its typed capability.
func Bluetooth(entry *MockEntry) *BluetoothControl {
	return &BluetoothControl{entry: entry}
}

// AddAdapter registers an adapter (e.g. hci0) with the given system name
// and returns its object path.
func (c *BluetoothControl) AddAdapter(deviceName, systemName string) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	err := c.entry.Control().Call(mockInterface+".AddAdapter", 0, deviceName, systemName).Store(&path)
	if err != nil {
		return "", fmt.Errorf("AddAdapter failed: %w", err)
	}
	return path, nil
}
