// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultMaxMessage     = 1000000
	DefaultHeartbeatMs    = 1000
	DefaultReconnectMs    = 1000
	DefaultWaveformLength = 10000
	DefaultMirrorProtocol = "modbus"
	DefaultIntervalMs     = 1000
	DefaultTimeoutMs      = 2000
	DefaultStaleMs        = 3000
	DefaultMaxParams      = 64
)

// Normalize fills defaults for unset optional fields.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	b := &cfg.Bridge

	if b.MaxMessage == 0 {
		b.MaxMessage = DefaultMaxMessage
	}
	if b.HeartbeatMs == 0 {
		b.HeartbeatMs = DefaultHeartbeatMs
	}
	if b.ReconnectMs == 0 {
		b.ReconnectMs = DefaultReconnectMs
	}
	if b.WaveformLength == 0 {
		b.WaveformLength = DefaultWaveformLength
	}

	// ------------------------------------------------------------
	// MIRROR (OPT-IN)
	// ------------------------------------------------------------

	m := b.Mirror
	if m == nil {
		return
	}
	if m.Protocol == "" {
		m.Protocol = DefaultMirrorProtocol
	}
	if m.IntervalMs == 0 {
		m.IntervalMs = DefaultIntervalMs
	}
	if m.TimeoutMs == 0 {
		m.TimeoutMs = DefaultTimeoutMs
	}
	if m.StaleMs == 0 {
		m.StaleMs = DefaultStaleMs
	}
	for i := range m.Devices {
		if m.Devices[i].MaxParams == 0 {
			m.Devices[i].MaxParams = DefaultMaxParams
		}
	}
}
