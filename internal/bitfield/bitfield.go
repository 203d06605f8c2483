// internal/bitfield/bitfield.go
package bitfield

import (
	"errors"
	"fmt"
)

// MaxWidth is the widest field the codec can carry.
const MaxWidth = 32

var (
	ErrWidth     = errors.New("bitfield: bit width out of range")
	ErrBitOffset = errors.New("bitfield: bit offset out of range")
	ErrBounds    = errors.New("bitfield: field exceeds buffer")
)

// Field locates a signed integer inside a process image.
// Geometry only: no names, no semantics.
type Field struct {
	ByteOffset int
	BitOffset  int
	Width      int
}

// WriteRequest is the outbound set-point descriptor.
// Bit packing happens at the transport boundary.
type WriteRequest struct {
	ByteOffset int32
	BitOffset  int32
	BitWidth   int32
	Value      int32
}

// Span returns the number of bytes touched by the field.
func (f Field) Span() int {
	return (f.BitOffset + f.Width + 7) / 8
}

// End returns the first byte offset past the field.
func (f Field) End() int {
	return f.ByteOffset + f.Span()
}

// Validate checks the field against a buffer of size bytes.
// Called once at mapping-table build time; the hot path trusts it.
func (f Field) Validate(size int) error {
	if f.Width < 1 || f.Width > MaxWidth {
		return fmt.Errorf("%w: %d", ErrWidth, f.Width)
	}
	if f.BitOffset < 0 || f.BitOffset > 7 {
		return fmt.Errorf("%w: %d", ErrBitOffset, f.BitOffset)
	}
	if f.ByteOffset < 0 || f.End() > size {
		return fmt.Errorf("%w: bytes %d-%d, size %d", ErrBounds, f.ByteOffset, f.End()-1, size)
	}
	return nil
}

// Extract reads f from buf, sign-extended to 32 bits.
func (f Field) Extract(buf []byte) int32 {
	return Extract(buf, f.ByteOffset, f.BitOffset, f.Width)
}

// Insert packs v into buf at f.
func (f Field) Insert(buf []byte, v int32) {
	Insert(buf, f.ByteOffset, f.BitOffset, f.Width, v)
}

// Encode builds the write descriptor for f.
func (f Field) Encode(v int32) WriteRequest {
	return Encode(f.ByteOffset, f.BitOffset, f.Width, v)
}

// Extract reads width bits starting at bit bitOffset of byte byteOffset.
// Bytes are little-endian; the result is sign-extended.
func Extract(buf []byte, byteOffset, bitOffset, width int) int32 {
	n := (bitOffset + width + 7) / 8

	var acc uint64
	for i := 0; i < n; i++ {
		acc |= uint64(buf[byteOffset+i]) << (8 * uint(i))
	}
	acc >>= uint(bitOffset)

	shift := 64 - uint(width)
	return int32(int64(acc<<shift) >> shift)
}

// Insert writes the low width bits of v at the given location.
// Bits outside the field are preserved.
func Insert(buf []byte, byteOffset, bitOffset, width int, v int32) {
	n := (bitOffset + width + 7) / 8

	var acc uint64
	for i := 0; i < n; i++ {
		acc |= uint64(buf[byteOffset+i]) << (8 * uint(i))
	}

	mask := (uint64(1)<<uint(width) - 1) << uint(bitOffset)
	acc = acc&^mask | (uint64(uint32(v))<<uint(bitOffset))&mask

	for i := 0; i < n; i++ {
		buf[byteOffset+i] = byte(acc >> (8 * uint(i)))
	}
}

// Encode builds a WriteRequest. No side effects.
func Encode(byteOffset, bitOffset, width int, v int32) WriteRequest {
	return WriteRequest{
		ByteOffset: int32(byteOffset),
		BitOffset:  int32(bitOffset),
		BitWidth:   int32(width),
		Value:      v,
	}
}

// Apply packs the request into a process image.
func (w WriteRequest) Apply(buf []byte) {
	Insert(buf, int(w.ByteOffset), int(w.BitOffset), int(w.BitWidth), w.Value)
}

// Field returns the location carried by the request.
func (w WriteRequest) Field() Field {
	return Field{
		ByteOffset: int(w.ByteOffset),
		BitOffset:  int(w.BitOffset),
		Width:      int(w.BitWidth),
	}
}
