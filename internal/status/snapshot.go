// internal/status/snapshot.go
package status

// Snapshot is the master health state the mirror is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	Cycle          uint16
	WorkingCounter int32
	WcState        int32
	Missed         uint32
	SecondsStale   uint16
}

// HealthOf maps a working counter state to a health code.
func HealthOf(wcState int32) uint16 {
	if wcState == WcComplete {
		return HealthOK
	}
	return HealthError
}
