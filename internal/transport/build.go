// internal/transport/build.go
package transport

import (
	"fmt"

	"github.com/tamzrod/ecat-bridge/internal/config"
	"github.com/tamzrod/ecat-bridge/internal/dispatch"
	"github.com/tamzrod/ecat-bridge/internal/mapping"
	"github.com/tamzrod/ecat-bridge/internal/wire"
)

// MasterPort is the port name of the master health tracker.
const MasterPort = "MASTER"

// Build turns a configuration message into a dispatch bus.
// Devices keep their configuration order, which is also the order of their
// status bytes in every frame. Position only joins mapping entries to
// devices. Samplers naming an unknown port are reported as warnings like
// any other unresolved sampler.
func Build(
	cfg wire.Config,
	samplers []dispatch.SamplerConfig,
	opts dispatch.Options,
) (*dispatch.Bus, []dispatch.Warning, error) {

	scanner, err := config.ParseScanner(cfg.Scanner)
	if err != nil {
		return nil, nil, err
	}
	entries, err := config.ParseMappings(cfg.Mapping)
	if err != nil {
		return nil, nil, err
	}

	// ---- group entries per device position ----

	byPos := make(map[int][]mapping.Entry)
	known := make(map[int]bool, len(scanner.Devices))
	for _, d := range scanner.Devices {
		known[d.Position] = true
	}
	for i, e := range entries {
		if !known[e.Device] {
			return nil, nil, fmt.Errorf("mapping: entry %d (%s.%s): unknown device position %d",
				i, e.Group, e.Entry, e.Device,
			)
		}
		byPos[e.Device] = append(byPos[e.Device], mapping.Entry{
			Group:  e.Group,
			Entry:  e.Entry,
			Offset: e.Offset,
			Bit:    e.Bit,
			Bits:   e.Bits,
		})
	}

	// ---- registries ----

	var (
		regs  []*dispatch.Registry
		warns []dispatch.Warning
		ports = make(map[string]bool, len(scanner.Devices))
	)
	for i, d := range scanner.Devices {
		tbl, err := mapping.Build(d.Position, d.Name, scanner.PDOSize, byPos[d.Position])
		if err != nil {
			return nil, nil, err
		}

		reg, w, err := dispatch.NewRegistry(dispatch.Device{
			Name:             d.Name,
			Type:             d.Type,
			Index:            i,
			OversamplingRate: d.OversamplingRate,
			Table:            tbl,
		}, samplers, opts)
		if err != nil {
			return nil, nil, err
		}

		warns = append(warns, w...)
		regs = append(regs, reg)
		ports[d.Name] = true
	}

	for _, sc := range samplers {
		if !ports[sc.Port] {
			warns = append(warns, dispatch.Warning{
				Port:    sc.Port,
				Channel: sc.Channel,
				Reason:  "port not found",
			})
		}
	}

	return dispatch.NewBus(dispatch.NewMaster(MasterPort), regs...), warns, nil
}
