// internal/mapping/mapping.go
package mapping

import (
	"fmt"
	"strings"

	"github.com/tamzrod/ecat-bridge/internal/bitfield"
)

// Entry is one parsed PDO entry mapping as supplied by configuration.
type Entry struct {
	Group  string // PDO name
	Entry  string // PDO entry name
	Offset int    // byte offset in the process image
	Bit    int    // bit offset inside the byte
	Bits   int    // bit width
}

// Mapping is one named channel inside a device's process image.
// Immutable after Build.
type Mapping struct {
	DeviceID int
	Name     string
	Group    string
	Entry    string
	Field    bitfield.Field
}

// Table is the ordered channel list of one device.
// Mappings are referenced by index, never by pointer.
type Table struct {
	device      string
	deviceID    int
	payloadSize int

	mappings []Mapping
	byName   map[string]int
}

// ChannelName joins a PDO group and entry name and strips every space.
// Lookups must use this exact form.
func ChannelName(group, entry string) string {
	return strings.ReplaceAll(group+"."+entry, " ", "")
}

// Build validates every entry against payloadSize and freezes the table.
// Any malformed entry fails the whole table: a bad offset is a
// configuration bug, not runtime data.
func Build(deviceID int, device string, payloadSize int, entries []Entry) (*Table, error) {
	if device == "" {
		return nil, fmt.Errorf("mapping: device %d: name required", deviceID)
	}
	if payloadSize <= 0 {
		return nil, fmt.Errorf("mapping: device %q: payload size must be > 0", device)
	}

	t := &Table{
		device:      device,
		deviceID:    deviceID,
		payloadSize: payloadSize,
		mappings:    make([]Mapping, 0, len(entries)),
		byName:      make(map[string]int, len(entries)),
	}

	for i, e := range entries {
		f := bitfield.Field{ByteOffset: e.Offset, BitOffset: e.Bit, Width: e.Bits}
		if err := f.Validate(payloadSize); err != nil {
			return nil, fmt.Errorf("mapping: device %q entry %d (%s.%s): %w",
				device, i, e.Group, e.Entry, err,
			)
		}

		name := ChannelName(e.Group, e.Entry)
		if _, dup := t.byName[name]; !dup {
			// first match wins on lookup
			t.byName[name] = len(t.mappings)
		}

		t.mappings = append(t.mappings, Mapping{
			DeviceID: deviceID,
			Name:     name,
			Group:    e.Group,
			Entry:    e.Entry,
			Field:    f,
		})
	}

	return t, nil
}

func (t *Table) Device() string   { return t.device }
func (t *Table) DeviceID() int    { return t.deviceID }
func (t *Table) PayloadSize() int { return t.payloadSize }
func (t *Table) Len() int         { return len(t.mappings) }

// At returns the mapping at index i.
func (t *Table) At(i int) Mapping { return t.mappings[i] }

// Mappings returns the ordered mappings. Callers must not modify it.
func (t *Table) Mappings() []Mapping { return t.mappings }

// FindByName resolves a normalized channel name.
// A miss means the feature is not wired for this device.
func (t *Table) FindByName(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}
