// internal/mirror/builder.go
package mirror

import (
	"fmt"
	"time"

	"github.com/tamzrod/ecat-bridge/internal/config"
	"github.com/tamzrod/ecat-bridge/internal/mirror/ingest"
	"github.com/tamzrod/ecat-bridge/internal/mirror/modbus"
)

// BuildPlan converts the mirror config into a Plan.
// Assumes config has already passed validation and normalization.
func BuildPlan(m *config.MirrorConfig) Plan {
	plan := Plan{
		Endpoint: m.Endpoint,
		UnitID:   m.UnitID,
		Interval: time.Duration(m.IntervalMs) * time.Millisecond,
	}

	for _, d := range m.Devices {
		plan.Devices = append(plan.Devices, DevicePlan{
			Port:        d.Port,
			BaseAddress: d.BaseAddress,
			MaxParams:   d.MaxParams,
		})
	}

	if m.MasterStatusAddress != nil {
		plan.Status = &StatusPlan{
			Address:    *m.MasterStatusAddress,
			StaleAfter: time.Duration(m.StaleMs) * time.Millisecond,
		}
	}

	return plan
}

// BuildFactory returns the endpoint client factory for the configured protocol.
func BuildFactory(m *config.MirrorConfig) (ClientFactory, error) {
	timeout := time.Duration(m.TimeoutMs) * time.Millisecond

	switch m.Protocol {
	case "modbus":
		return func() (endpointClient, error) {
			return modbus.NewEndpointClient(modbus.Config{
				Endpoint: m.Endpoint,
				Timeout:  timeout,
			})
		}, nil

	case "ingest":
		return func() (endpointClient, error) {
			return ingest.NewEndpointClient(ingest.Config{
				Endpoint: m.Endpoint,
				Timeout:  timeout,
			})
		}, nil

	default:
		return nil, fmt.Errorf("mirror: unknown protocol %q", m.Protocol)
	}
}
