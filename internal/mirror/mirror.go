// internal/mirror/mirror.go
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tamzrod/ecat-bridge/internal/dispatch"
)

// Mirror periodically copies device parameters and the master status block
// into an external register memory.
// The endpoint client is reused while healthy. On any write failure it is
// discarded and the factory is used again on a future tick.
type Mirror struct {
	plan    Plan
	devices []Device // parallel to plan.Devices
	master  Master
	status  *statusWriter

	factory ClientFactory
	client  endpointClient

	log *log.Logger
}

// New binds plan to the bus. Every planned port must exist on the bus.
func New(plan Plan, bus *dispatch.Bus, factory ClientFactory, l *log.Logger) (*Mirror, error) {
	devices := make([]Device, 0, len(plan.Devices))
	for _, d := range plan.Devices {
		reg, ok := bus.Device(d.Port)
		if !ok {
			return nil, fmt.Errorf("mirror: port %q not found", d.Port)
		}
		devices = append(devices, reg)
	}
	return newMirror(plan, devices, bus.Master(), factory, l)
}

func newMirror(plan Plan, devices []Device, master Master, factory ClientFactory, l *log.Logger) (*Mirror, error) {
	if factory == nil {
		return nil, errors.New("mirror: client factory required")
	}
	if plan.Interval <= 0 {
		return nil, errors.New("mirror: interval must be > 0")
	}
	if l == nil {
		l = log.Default()
	}

	m := &Mirror{
		plan:    plan,
		devices: devices,
		master:  master,
		factory: factory,
		log:     l,
	}
	if plan.Status != nil {
		m.status = newStatusWriter(plan.Status, plan.UnitID)
	}

	for i, d := range devices {
		if n := len(d.Params()); n > plan.Devices[i].MaxParams {
			m.log.Printf("mirror: port %s has %d params, only the first %d are mirrored",
				d.Name(), n, plan.Devices[i].MaxParams,
			)
		}
	}

	return m, nil
}

// Run starts the ticker loop. One goroutine per mirror. No overlap.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.plan.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case <-ticker.C:
			if err := m.WriteOnce(); err != nil {
				m.log.Printf("mirror write failed (endpoint=%s): %v", m.plan.Endpoint, err)
			}
		}
	}
}

// WriteOnce performs exactly one mirror cycle.
func (m *Mirror) WriteOnce() error {
	if m.client == nil {
		cli, err := m.factory()
		if err != nil {
			return fmt.Errorf("mirror: connect: %w", err)
		}
		m.client = cli
		if m.status != nil {
			m.status.invalidate()
		}
	}

	var errs []string

	// ------------------------------------------------------------
	// DEVICE PARAMETERS
	// ------------------------------------------------------------

	for i, d := range m.devices {
		dp := m.plan.Devices[i]

		values := d.Snapshot()
		if len(values) > dp.MaxParams {
			values = values[:dp.MaxParams]
		}
		if len(values) == 0 {
			continue
		}

		if err := m.client.WriteRegisters(m.plan.UnitID, dp.BaseAddress, EncodeParams(values)); err != nil {
			errs = append(errs, fmt.Sprintf(
				"mirror: port=%s addr=%d err=%v",
				dp.Port, dp.BaseAddress, err,
			))
		}
	}

	// ------------------------------------------------------------
	// MASTER STATUS
	// ------------------------------------------------------------

	if m.status != nil && m.master != nil {
		snap := m.master.Health(m.plan.Status.StaleAfter)
		if err := m.status.WriteStatus(m.client, snap); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		m.drop()
		return errors.New(strings.Join(errs, " | "))
	}

	return nil
}

// Close releases the endpoint client.
func (m *Mirror) Close() {
	m.drop()
}

func (m *Mirror) drop() {
	if m.client == nil {
		return
	}
	_ = m.client.Close()
	m.client = nil
}

// EncodeParams lays int32 values out as register pairs, high word first.
func EncodeParams(values []int32) []uint16 {
	regs := make([]uint16, 2*len(values))
	for i, v := range values {
		u := uint32(v)
		regs[2*i] = uint16(u >> 16)
		regs[2*i+1] = uint16(u)
	}
	return regs
}
