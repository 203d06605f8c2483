// internal/status/constants.go
package status

// Master Status Block layout constants.
// These values define the mirror protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerBlock is the fixed number of registers in the master status block.
const SlotsPerBlock = 10

// ---- SLOT INDICES ----

// SlotHealthCode holds the link health state.
const SlotHealthCode = 0

// SlotCycle holds the last outer cycle number.
const SlotCycle = 1

// SlotWorkingCounter holds the low 16 bits of the last working counter.
const SlotWorkingCounter = 2

// SlotWcState holds the last working counter state.
const SlotWcState = 3

// SlotMissedHi and SlotMissedLo hold the missed-frame counter, high word first.
const SlotMissedHi = 4
const SlotMissedLo = 5

// SlotSecondsStale holds the seconds since the last frame while stale.
const SlotSecondsStale = 6

// ---- RESERVED RANGE ----

// Slots 7–9 are reserved for future use.
const SlotReservedStart = 7
const SlotReservedEnd = 9

// ---- WORKING COUNTER STATES ----

// WcZero means no slave exchanged process data.
const WcZero int32 = 0

// WcIncomplete means some slaves exchanged process data.
const WcIncomplete int32 = 1

// WcComplete means every slave exchanged process data.
const WcComplete int32 = 2

// ---- HEALTH CODES ----

// HealthUnknown represents the boot state: no frame received yet.
const HealthUnknown uint16 = 0

// HealthOK represents a complete working counter.
const HealthOK uint16 = 1

// HealthError represents a zero or incomplete working counter.
const HealthError uint16 = 2

// HealthStale represents a link that stopped delivering frames.
const HealthStale uint16 = 3
