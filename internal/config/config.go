// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bridge BridgeConfig `yaml:"bridge"`
}

type BridgeConfig struct {
	Socket         string          `yaml:"socket"`
	MaxMessage     int             `yaml:"max_message"`
	HeartbeatMs    int             `yaml:"heartbeat_ms"`
	ReconnectMs    int             `yaml:"reconnect_ms"`
	WaveformLength int             `yaml:"waveform_length"`
	Samplers       []SamplerConfig `yaml:"samplers"`
	Record         *RecordConfig   `yaml:"record"`
	Mirror         *MirrorConfig   `yaml:"mirror"`
}

// ---- SAMPLERS ----

// SamplerConfig attaches a tap to a device channel.
// An empty Cycle requests a plain sampler.
type SamplerConfig struct {
	Port    string `yaml:"port"`
	Channel int    `yaml:"channel"`
	Sample  string `yaml:"sample"`
	Cycle   string `yaml:"cycle"`
}

// ---- RECORDING ----

type RecordConfig struct {
	Dir string `yaml:"dir"`
}

// ---- MIRROR ----

type MirrorConfig struct {
	Protocol            string         `yaml:"protocol"` // modbus | ingest
	Endpoint            string         `yaml:"endpoint"`
	UnitID              uint8          `yaml:"unit_id"`
	IntervalMs          int            `yaml:"interval_ms"`
	TimeoutMs           int            `yaml:"timeout_ms"`
	StaleMs             int            `yaml:"stale_ms"`
	MasterStatusAddress *uint16        `yaml:"master_status_address"`
	Devices             []MirrorDevice `yaml:"devices"`
}

type MirrorDevice struct {
	Port        string `yaml:"port"`
	BaseAddress uint16 `yaml:"base_address"`
	// MaxParams bounds the register span: two registers per parameter.
	MaxParams int `yaml:"max_params"`
}

// Load reads and decodes a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes a YAML configuration document.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}
