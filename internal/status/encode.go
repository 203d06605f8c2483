// internal/status/encode.go
package status

// Encode converts a Snapshot into a full master status block.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerBlock)

	regs[SlotHealthCode] = s.Health
	regs[SlotCycle] = s.Cycle
	regs[SlotWorkingCounter] = uint16(s.WorkingCounter)
	regs[SlotWcState] = uint16(s.WcState)
	regs[SlotMissedHi] = uint16(s.Missed >> 16)
	regs[SlotMissedLo] = uint16(s.Missed)
	regs[SlotSecondsStale] = s.SecondsStale

	return regs
}
