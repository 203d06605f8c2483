// internal/dispatch/decoder.go
package dispatch

import (
	"github.com/tamzrod/ecat-bridge/internal/mapping"
	"github.com/tamzrod/ecat-bridge/internal/wire"
)

// Status holds the two per-device status bytes trailing the payload.
type Status struct {
	ALState   int32
	ErrorFlag int32
}

// DecodeChannels decodes every mapping of tbl from buf into out.
// out must have tbl.Len() elements.
func DecodeChannels(tbl *mapping.Table, buf []byte, out []int32) {
	for i, m := range tbl.Mappings() {
		out[i] = m.Field.Extract(buf)
	}
}

// DecodeStatus reads the status bytes of device index from f.
// A status offset past the frame means the transport and decoder disagree
// on layout: that is fatal.
func DecodeStatus(f *wire.Frame, index int) Status {
	off := f.PayloadSize + 2*index
	if off < 0 || off+1 >= len(f.Buffer) {
		wire.Fatalf("status", "device %d: status offset %d beyond frame of %d bytes",
			index, off, len(f.Buffer),
		)
	}
	return Status{
		ALState:   int32(f.Buffer[off]),
		ErrorFlag: int32(f.Buffer[off+1]),
	}
}
