// internal/dispatch/master.go
package dispatch

import (
	"sync"
	"time"

	"github.com/tamzrod/ecat-bridge/internal/param"
	"github.com/tamzrod/ecat-bridge/internal/status"
	"github.com/tamzrod/ecat-bridge/internal/wire"
)

// Master parameter names.
const (
	ParamCycle          = "Cycle"
	ParamWorkingCounter = "WorkingCounter"
	ParamMissed         = "Missed"
	ParamWcState        = "WcState"
)

// Master tracks link health at outer-cycle granularity.
type Master struct {
	mu sync.Mutex

	params   *param.Store
	pCycle   int
	pWC      int
	pMissed  int
	pWcState int

	lastCycle uint16
	missed    uint32
	seen      bool
	lastAt    time.Time
	now       func() time.Time
}

// NewMaster creates the master health tracker.
func NewMaster(name string) *Master {
	m := &Master{
		params: param.NewStore(name),
		now:    time.Now,
	}
	// fresh store: names cannot collide
	m.pCycle, _ = m.params.Create(ParamCycle)
	m.pWC, _ = m.params.Create(ParamWorkingCounter)
	m.pMissed, _ = m.params.Create(ParamMissed)
	m.pWcState, _ = m.params.Create(ParamWcState)
	return m
}

// Name returns the master port name.
func (m *Master) Name() string { return m.params.Owner() }

// OnFrame records the frame's sequence and health fields.
// Any cycle other than last+1 (mod 65536) counts as one missed event.
func (m *Master) OnFrame(f *wire.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastCycle+1 != f.Cycle {
		m.missed++
	}
	m.lastCycle = f.Cycle
	m.seen = true
	m.lastAt = m.now()

	m.params.Set(m.pCycle, int32(f.Cycle))
	m.params.Set(m.pWC, f.WorkingCounter)
	m.params.Set(m.pWcState, f.WcState)
	m.params.Set(m.pMissed, int32(m.missed&0x7fffffff))
	m.params.Publish()
}

// Subscribe registers a listener called once per frame with changed values.
func (m *Master) Subscribe(l param.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params.Subscribe(l)
}

// Read returns a master parameter.
func (m *Master) Read(name string) (int32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.params.Find(name)
	if !ok {
		return 0, false
	}
	return m.params.Get(i), true
}

// Missed returns the number of outer-cycle gaps observed.
func (m *Master) Missed() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missed
}

// Health returns the current link snapshot. A link silent for longer than
// staleAfter reports HealthStale.
func (m *Master) Health(staleAfter time.Duration) status.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.seen {
		return status.Snapshot{Health: status.HealthUnknown}
	}

	s := status.Snapshot{
		Health:         status.HealthOf(m.params.Get(m.pWcState)),
		Cycle:          m.lastCycle,
		WorkingCounter: m.params.Get(m.pWC),
		WcState:        m.params.Get(m.pWcState),
		Missed:         m.missed,
	}

	if age := m.now().Sub(m.lastAt); staleAfter > 0 && age > staleAfter {
		s.Health = status.HealthStale
		secs := age / time.Second
		if secs > 65535 {
			secs = 65535
		}
		s.SecondsStale = uint16(secs)
	}
	return s
}
