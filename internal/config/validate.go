// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/tamzrod/ecat-bridge/internal/status"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values of optional fields are accepted; Normalize fills them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: empty configuration")
	}
	b := cfg.Bridge

	// ------------------------------------------------------------
	// TRANSPORT
	// ------------------------------------------------------------

	if b.Socket == "" {
		return fmt.Errorf("bridge: socket path required")
	}
	if b.MaxMessage < 0 {
		return fmt.Errorf("bridge: max_message must not be negative")
	}
	if b.HeartbeatMs < 0 {
		return fmt.Errorf("bridge: heartbeat_ms must not be negative")
	}
	if b.ReconnectMs < 0 {
		return fmt.Errorf("bridge: reconnect_ms must not be negative")
	}
	if b.WaveformLength < 0 {
		return fmt.Errorf("bridge: waveform_length must not be negative")
	}

	// ------------------------------------------------------------
	// SAMPLERS
	// ------------------------------------------------------------

	// key = port | channel
	seen := make(map[string]int)
	for i, s := range b.Samplers {
		if s.Port == "" || s.Sample == "" {
			return fmt.Errorf("sampler %d: port and sample are required", i)
		}
		key := fmt.Sprintf("%s|%d", s.Port, s.Channel)
		if prev, dup := seen[key]; dup {
			return fmt.Errorf(
				"sampler collision: port=%s channel=%d used by samplers %d and %d",
				s.Port, s.Channel, prev, i,
			)
		}
		seen[key] = i
	}

	if b.Record != nil && b.Record.Dir == "" {
		return fmt.Errorf("record: dir required")
	}

	// ------------------------------------------------------------
	// MIRROR GEOMETRY VALIDATION (OPT-IN)
	// ------------------------------------------------------------

	m := b.Mirror
	if m == nil {
		return nil
	}

	switch m.Protocol {
	case "", "modbus", "ingest":
	default:
		return fmt.Errorf("mirror: unknown protocol %q", m.Protocol)
	}
	if m.Endpoint == "" {
		return fmt.Errorf("mirror: endpoint required")
	}
	if m.IntervalMs < 0 {
		return fmt.Errorf("mirror: interval_ms must not be negative")
	}
	if m.TimeoutMs < 0 {
		return fmt.Errorf("mirror: timeout_ms must not be negative")
	}
	if m.StaleMs < 0 {
		return fmt.Errorf("mirror: stale_ms must not be negative")
	}

	type span struct {
		start uint32
		end   uint32
		owner string
	}
	var spans []span

	add := func(owner string, start uint16, n int) error {
		s := span{start: uint32(start), end: uint32(start) + uint32(n) - 1, owner: owner}
		if s.end > 0xffff {
			return fmt.Errorf("mirror: %s range %d-%d exceeds register space", owner, s.start, s.end)
		}
		for _, o := range spans {
			// overlap check (inclusive)
			if !(s.end < o.start || s.start > o.end) {
				return fmt.Errorf(
					"mirror overlap: %s range=%d-%d overlaps with %s range=%d-%d",
					owner, s.start, s.end, o.owner, o.start, o.end,
				)
			}
		}
		spans = append(spans, s)
		return nil
	}

	if m.MasterStatusAddress != nil {
		if err := add("master status", *m.MasterStatusAddress, status.SlotsPerBlock); err != nil {
			return err
		}
	}

	ports := make(map[string]bool)
	for _, d := range m.Devices {
		if d.Port == "" {
			return fmt.Errorf("mirror: device port required")
		}
		if ports[d.Port] {
			return fmt.Errorf("mirror: port %q listed twice", d.Port)
		}
		ports[d.Port] = true

		if d.MaxParams < 0 {
			return fmt.Errorf("mirror: port %q: max_params must not be negative", d.Port)
		}
		n := d.MaxParams
		if n == 0 {
			n = DefaultMaxParams
		}
		if err := add("port "+d.Port, d.BaseAddress, 2*n); err != nil {
			return err
		}
	}

	return nil
}
