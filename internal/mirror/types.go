// internal/mirror/types.go
package mirror

import (
	"time"

	"github.com/tamzrod/ecat-bridge/internal/status"
)

// DevicePlan places one device's parameters in register memory.
// Each parameter takes two registers, high word first.
type DevicePlan struct {
	Port        string
	BaseAddress uint16
	MaxParams   int
}

// StatusPlan places the master status block.
type StatusPlan struct {
	Address    uint16
	StaleAfter time.Duration
}

// Plan is the fully-built mirror plan.
type Plan struct {
	Endpoint string
	UnitID   uint8
	Interval time.Duration
	Devices  []DevicePlan
	Status   *StatusPlan // nil => no status block
}

// Device is the read side of one device registry.
type Device interface {
	Name() string
	Params() []string
	Snapshot() []int32
}

// Master is the read side of the master health tracker.
type Master interface {
	Health(staleAfter time.Duration) status.Snapshot
}

// endpointClient is the exact contract the mirror uses.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
	Close() error
}

// ClientFactory opens one endpoint connection. ONE attempt per call.
type ClientFactory func() (endpointClient, error)
