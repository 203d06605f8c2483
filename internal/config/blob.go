// internal/config/blob.go
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ---- SCANNER BLOB ----

// Scanner is the scanner description delivered in the Config message.
type Scanner struct {
	PDOSize int             `yaml:"pdo_size"`
	Devices []ScannerDevice `yaml:"devices"`
}

type ScannerDevice struct {
	Name             string `yaml:"name"`
	Type             string `yaml:"type"`
	Position         int    `yaml:"position"`
	OversamplingRate int    `yaml:"oversampling_rate"`
}

// ParseScanner decodes and checks the scanner blob.
func ParseScanner(b []byte) (*Scanner, error) {
	var s Scanner
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("scanner: decode: %w", err)
	}

	if s.PDOSize < 0 {
		return nil, fmt.Errorf("scanner: pdo_size %d is negative", s.PDOSize)
	}

	names := make(map[string]bool)
	positions := make(map[int]string)
	for i, d := range s.Devices {
		if d.Name == "" {
			return nil, fmt.Errorf("scanner: device %d: name required", i)
		}
		if names[d.Name] {
			return nil, fmt.Errorf("scanner: device name %q listed twice", d.Name)
		}
		names[d.Name] = true

		if d.Position < 0 {
			return nil, fmt.Errorf("scanner: device %q: negative position", d.Name)
		}
		if prev, dup := positions[d.Position]; dup {
			return nil, fmt.Errorf("scanner: devices %q and %q share position %d", prev, d.Name, d.Position)
		}
		positions[d.Position] = d.Name
	}

	return &s, nil
}

// ---- MAPPING BLOB ----

// MappingEntry places one named process-data entry of a device inside the
// PDO payload. Device is the scanner position of the owning device.
type MappingEntry struct {
	Device int    `yaml:"device"`
	Group  string `yaml:"group"`
	Entry  string `yaml:"entry"`
	Offset int    `yaml:"offset"`
	Bit    int    `yaml:"bit"`
	Bits   int    `yaml:"bits"`
}

type mappingDoc struct {
	Entries []MappingEntry `yaml:"entries"`
}

// ParseMappings decodes the mapping blob. Field geometry is checked when the
// mapping tables are built against the payload size.
func ParseMappings(b []byte) ([]MappingEntry, error) {
	var doc mappingDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("mapping: decode: %w", err)
	}
	return doc.Entries, nil
}
