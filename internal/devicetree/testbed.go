// Package devicetree fabricates a hardware device tree the shell under
// test resolves in place of the real sysfs. Devices are plain directories
// with attribute files, so a test can mutate an attribute and the shell
// sees the new value on its next read without re-enumeration.
package devicetree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shelltest/pkg/logging"
)

const subsystem = "devicetree"

// KeyValue is one ordered attribute or property entry. Within a single
// AddDevice call a later entry for the same key overwrites the earlier one.
type KeyValue struct {
	Key   string
	Value string
}

// Pairs builds a KeyValue list from alternating key/value strings, the way
// device specs are usually written inline.
func Pairs(kv ...string) []KeyValue {
	if len(kv)%2 != 0 {
		panic("devicetree.Pairs: odd number of arguments")
	}
	pairs := make([]KeyValue, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		pairs = append(pairs, KeyValue{Key: kv[i], Value: kv[i+1]})
	}
	return pairs
}

// Testbed owns one fabricated device tree rooted at a private directory.
type Testbed struct {
	root    string
	devices map[string]string // syspath -> backing directory
}

// New creates a testbed rooted at dir. The directory is created if needed;
// the fabricated tree lives under <dir>/sys.
func New(dir string) (*Testbed, error) {
	if err := os.MkdirAll(filepath.Join(dir, "sys", "devices"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create testbed root: %w", err)
	}
	return &Testbed{
		root:    dir,
		devices: make(map[string]string),
	}, nil
}

// Root returns the directory to inject into the shell's environment so its
// device discovery resolves the fabricated tree.
func (tb *Testbed) Root() string {
	return tb.root
}

// AddDevice fabricates a device node and returns its deterministic
// device path. A top-level device (empty parent) always lives at
// /sys/devices/<name>; a child device at <parent>/<name>. Attributes
// become files under the device directory, applied in order. Properties
// are recorded in the device's uevent file as KEY=VALUE lines.
func (tb *Testbed) AddDevice(category, name, parent string, attrs, props []KeyValue) (string, error) {
	if category == "" || name == "" {
		return "", fmt.Errorf("device category and name must not be empty")
	}

	var syspath string
	if parent == "" {
		syspath = "/sys/devices/" + name
	} else {
		syspath = parent + "/" + name
	}

	if _, exists := tb.devices[syspath]; exists {
		return "", fmt.Errorf("device %s already exists in testbed", syspath)
	}

	dir := filepath.Join(tb.root, filepath.FromSlash(strings.TrimPrefix(syspath, "/")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create device directory: %w", err)
	}

	// The subsystem file stands in for the sysfs class link.
	if err := os.WriteFile(filepath.Join(dir, "subsystem"), []byte(category+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to write subsystem for %s: %w", syspath, err)
	}

	for _, attr := range dedupe(attrs) {
		if err := os.WriteFile(filepath.Join(dir, attr.Key), []byte(attr.Value+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("failed to write attribute %s of %s: %w", attr.Key, syspath, err)
		}
	}

	var uevent strings.Builder
	uevent.WriteString("SUBSYSTEM=" + category + "\n")
	for _, prop := range dedupe(props) {
		uevent.WriteString(prop.Key + "=" + prop.Value + "\n")
	}
	if err := os.WriteFile(filepath.Join(dir, "uevent"), []byte(uevent.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write uevent for %s: %w", syspath, err)
	}

	tb.devices[syspath] = dir
	logging.Debug(subsystem, "added %s device %s at %s", category, name, syspath)

	return syspath, nil
}

// SetAttribute rewrites one attribute of an existing device. The change is
// visible to the shell on its next read of the attribute file.
func (tb *Testbed) SetAttribute(syspath, key, value string) error {
	dir, ok := tb.devices[syspath]
	if !ok {
		return fmt.Errorf("unknown device %s", syspath)
	}
	if err := os.WriteFile(filepath.Join(dir, key), []byte(value+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to set attribute %s of %s: %w", key, syspath, err)
	}
	return nil
}

// ReadAttribute returns the current value of a device attribute.
func (tb *Testbed) ReadAttribute(syspath, key string) (string, error) {
	dir, ok := tb.devices[syspath]
	if !ok {
		return "", fmt.Errorf("unknown device %s", syspath)
	}
	data, err := os.ReadFile(filepath.Join(dir, key))
	if err != nil {
		return "", fmt.Errorf("failed to read attribute %s of %s: %w", key, syspath, err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// dedupe keeps order but lets a later entry for the same key win.
func dedupe(pairs []KeyValue) []KeyValue {
	last := make(map[string]int, len(pairs))
	for i, p := range pairs {
		last[p.Key] = i
	}
	out := make([]KeyValue, 0, len(last))
	for i, p := range pairs {
		if last[p.Key] == i {
			out = append(out, p)
		}
	}
	return out
}
