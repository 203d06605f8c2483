// internal/mirror/status_writer.go
package mirror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/ecat-bridge/internal/status"
)

// statusWriter delivers master status snapshots into register memory.
// The first write, and the first write after any failure, re-asserts the
// full block; otherwise only changed slots are written.
type statusWriter struct {
	plan   *StatusPlan
	unitID uint8

	needFull bool
	last     []uint16
}

func newStatusWriter(plan *StatusPlan, unitID uint8) *statusWriter {
	return &statusWriter{
		plan:     plan,
		unitID:   unitID,
		needFull: true,
	}
}

func (sw *statusWriter) invalidate() { sw.needFull = true }

// WriteStatus writes s through cli.
func (sw *statusWriter) WriteStatus(cli endpointClient, s status.Snapshot) error {
	regs := status.Encode(s)

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		if err := cli.WriteRegisters(sw.unitID, sw.plan.Address, regs); err != nil {
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		sw.needFull = false
		sw.last = regs
		return nil
	}

	var errs []string

	for slot, v := range regs {
		if sw.last[slot] == v {
			continue
		}
		addr := sw.plan.Address + uint16(slot)
		if err := cli.WriteRegisters(sw.unitID, addr, []uint16{v}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d write failed: %v", slot, err))
			continue
		}
		sw.last[slot] = v
	}

	if len(errs) > 0 {
		// any partial failure: re-assert on next success
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	return nil
}
