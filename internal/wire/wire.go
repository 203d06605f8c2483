// internal/wire/wire.go
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tamzrod/ecat-bridge/internal/bitfield"
)

// Message tags. All integers on the wire are little-endian int32.
const (
	TagConfig    int32 = 1
	TagPDO       int32 = 2
	TagWrite     int32 = 3
	TagHeartbeat int32 = 4
)

// PDOHeaderSize is tag + cycle + working counter + wc state + payload size.
const PDOHeaderSize = 5 * 4

var (
	ErrShort = errors.New("wire: short message")
	ErrTag   = errors.New("wire: unexpected message tag")
	ErrSize  = errors.New("wire: invalid size field")
)

// Frame is one inbound PDO message.
// Buffer aliases the transport's receive buffer and must not be retained
// past dispatch.
type Frame struct {
	Cycle          uint16
	WorkingCounter int32
	WcState        int32
	PayloadSize    int
	Buffer         []byte // payload followed by 2 status bytes per device
}

// Message is one outbound message: a Write or a Heartbeat.
type Message struct {
	Tag   int32
	Write bitfield.WriteRequest
}

// Heartbeat is the keep-alive message.
func Heartbeat() Message { return Message{Tag: TagHeartbeat} }

// Write wraps a write request.
func Write(w bitfield.WriteRequest) Message { return Message{Tag: TagWrite, Write: w} }

// Config is the configuration message body.
type Config struct {
	Scanner []byte
	Mapping []byte
}

// PeekTag returns the tag of a raw message.
func PeekTag(msg []byte) (int32, error) {
	if len(msg) < 4 {
		return 0, fmt.Errorf("%w: %d bytes", ErrShort, len(msg))
	}
	return int32(binary.LittleEndian.Uint32(msg)), nil
}

// DecodePDO decodes a PDO message. The returned frame aliases msg.
func DecodePDO(msg []byte) (Frame, error) {
	dec := decoder{p: msg}

	tag := dec.readI32()
	if dec.err != nil {
		return Frame{}, fmt.Errorf("wire: could not read PDO tag: %w", dec.err)
	}
	if tag != TagPDO {
		return Frame{}, fmt.Errorf("%w: got=%d want=%d", ErrTag, tag, TagPDO)
	}

	var f Frame
	f.Cycle = uint16(dec.readI32())
	f.WorkingCounter = dec.readI32()
	f.WcState = dec.readI32()
	size := dec.readI32()
	if dec.err != nil {
		return Frame{}, fmt.Errorf("wire: could not read PDO header: %w", dec.err)
	}

	f.Buffer = dec.rest()
	if size < 0 || int(size) > len(f.Buffer) {
		return Frame{}, fmt.Errorf("%w: payload size %d, buffer %d", ErrSize, size, len(f.Buffer))
	}
	f.PayloadSize = int(size)

	return f, nil
}

// AppendPDO appends the wire form of f to dst.
func AppendPDO(dst []byte, f Frame) []byte {
	dst = appendI32(dst, TagPDO)
	dst = appendI32(dst, int32(f.Cycle))
	dst = appendI32(dst, f.WorkingCounter)
	dst = appendI32(dst, f.WcState)
	dst = appendI32(dst, int32(f.PayloadSize))
	return append(dst, f.Buffer...)
}

// DecodeConfig decodes a configuration message. Blobs alias msg.
func DecodeConfig(msg []byte) (Config, error) {
	dec := decoder{p: msg}

	tag := dec.readI32()
	if dec.err != nil {
		return Config{}, fmt.Errorf("wire: could not read config tag: %w", dec.err)
	}
	if tag != TagConfig {
		return Config{}, fmt.Errorf("%w: got=%d want=%d", ErrTag, tag, TagConfig)
	}

	var cfg Config
	cfg.Scanner = dec.readBlob()
	if dec.err != nil {
		return Config{}, fmt.Errorf("wire: could not read scanner config: %w", dec.err)
	}
	cfg.Mapping = dec.readBlob()
	if dec.err != nil {
		return Config{}, fmt.Errorf("wire: could not read mapping config: %w", dec.err)
	}

	return cfg, nil
}

// AppendConfig appends the wire form of a configuration message to dst.
func AppendConfig(dst []byte, cfg Config) []byte {
	dst = appendI32(dst, TagConfig)
	dst = appendI32(dst, int32(len(cfg.Scanner)))
	dst = append(dst, cfg.Scanner...)
	dst = appendI32(dst, int32(len(cfg.Mapping)))
	return append(dst, cfg.Mapping...)
}

// AppendMessage appends the wire form of an outbound message to dst.
func AppendMessage(dst []byte, m Message) ([]byte, error) {
	switch m.Tag {
	case TagWrite:
		dst = appendI32(dst, TagWrite)
		dst = appendI32(dst, m.Write.ByteOffset)
		dst = appendI32(dst, m.Write.BitOffset)
		dst = appendI32(dst, m.Write.BitWidth)
		dst = appendI32(dst, m.Write.Value)
		return dst, nil
	case TagHeartbeat:
		return appendI32(dst, TagHeartbeat), nil
	default:
		return dst, fmt.Errorf("%w: outbound tag %d", ErrTag, m.Tag)
	}
}

// DecodeMessage decodes an outbound message (simulator side).
func DecodeMessage(msg []byte) (Message, error) {
	dec := decoder{p: msg}

	tag := dec.readI32()
	if dec.err != nil {
		return Message{}, fmt.Errorf("wire: could not read message tag: %w", dec.err)
	}

	switch tag {
	case TagHeartbeat:
		return Heartbeat(), nil
	case TagWrite:
		var w bitfield.WriteRequest
		w.ByteOffset = dec.readI32()
		w.BitOffset = dec.readI32()
		w.BitWidth = dec.readI32()
		w.Value = dec.readI32()
		if dec.err != nil {
			return Message{}, fmt.Errorf("wire: could not read write message: %w", dec.err)
		}
		return Write(w), nil
	default:
		return Message{}, fmt.Errorf("%w: %d", ErrTag, tag)
	}
}

// ---- decoding helpers ----

type decoder struct {
	p   []byte
	off int
	err error
}

func (dec *decoder) readI32() int32 {
	if dec.err != nil {
		return 0
	}
	if len(dec.p)-dec.off < 4 {
		dec.err = ErrShort
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(dec.p[dec.off:]))
	dec.off += 4
	return v
}

func (dec *decoder) readBlob() []byte {
	n := dec.readI32()
	if dec.err != nil {
		return nil
	}
	if n < 0 || int(n) > len(dec.p)-dec.off {
		dec.err = fmt.Errorf("%w: blob size %d", ErrSize, n)
		return nil
	}
	p := dec.p[dec.off : dec.off+int(n)]
	dec.off += int(n)
	return p
}

func (dec *decoder) rest() []byte {
	return dec.p[dec.off:]
}

func appendI32(dst []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(v))
}
