// internal/dispatch/tap.go
package dispatch

import (
	"encoding/binary"

	"github.com/tamzrod/ecat-bridge/internal/mapping"
	"github.com/tamzrod/ecat-bridge/internal/sink"
)

// Kind selects the behavior of a Tap.
type Kind uint8

const (
	// Plain decodes one scalar per frame.
	Plain Kind = iota
	// Oversampled decodes a burst of int16 samples per frame, guarded by an
	// embedded sub-cycle counter.
	Oversampled
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Oversampled:
		return "oversampled"
	default:
		return "unknown"
	}
}

// Tap is a single-channel frame tap.
// The Oversampled-only fields are zero for Plain taps.
type Tap struct {
	Kind    Kind
	Channel int

	sample int // mapping index
	sink   sink.Sink
	wave   *sink.Waveform

	// Oversampled only.
	cycle       int // mapping index of the sub-cycle counter
	stride      int
	lastCycle   uint16
	missed      uint32
	missedParam int
}

// Missed returns the number of sub-cycle gaps observed.
func (t *Tap) Missed() uint32 { return t.missed }

// LastCycle returns the last accepted sub-cycle number.
func (t *Tap) LastCycle() uint16 { return t.lastCycle }

// onFrame runs the tap against one frame buffer.
// Called with the device lock held. Returns true when samples were pushed.
func (r *Registry) onFrame(t *Tap, tbl *mapping.Table, buf []byte) bool {
	switch t.Kind {
	case Plain:
		t.sink.Put(tbl.At(t.sample).Field.Extract(buf))
		return true

	case Oversampled:
		cyc := uint16(tbl.At(t.cycle).Field.Extract(buf))
		if cyc == t.lastCycle {
			// duplicate delivery of an already processed sub-cycle
			return false
		}
		if t.lastCycle+1 != cyc {
			// a gap of one or more sub-cycles; its size is not tracked
			t.missed++
			r.params.Set(t.missedParam, int32(t.missed&0x7fffffff))
		}
		t.lastCycle = cyc

		off := tbl.At(t.sample).Field.ByteOffset
		for s := 0; s < t.stride; s++ {
			t.sink.Put(int32(int16(binary.LittleEndian.Uint16(buf[off+2*s:]))))
		}
		return true
	}
	return false
}
