// Package query implements the generic read/write query against one open
// array: layout and subarray handling, buffer binding, and fragment-backed
// dense and sparse execution.
package query

import (
	"github.com/axisdb/axisdb/internal/bytesconv"
	"github.com/axisdb/axisdb/ranges"
)

// Buffer is one caller-supplied field buffer. The engine treats Data as an
// opaque byte extent; Size is in-out: capacity in bytes before a submit,
// bytes produced or consumed after it.
type Buffer struct {
	Data []byte
	Size *uint64

	// Var-length cells carry byte offsets per cell. The ordered label path
	// does not support them; they exist for interface fidelity.
	Offsets     []uint64
	OffsetsSize *uint64

	// Validity marks nullable cells.
	Validity     []uint8
	ValiditySize *uint64
}

// NewBuffer wraps a byte slice as a fixed-size buffer with capacity
// len(data).
func NewBuffer(data []byte) Buffer {
	size := uint64(len(data))
	return Buffer{Data: data, Size: &size}
}

// BufferOf wraps a typed scalar slice as a buffer without copying.
func BufferOf[T ranges.Scalar](v []T) Buffer {
	return NewBuffer(bytesconv.Bytes(v))
}

// IsSet reports whether the buffer carries storage.
func (b Buffer) IsSet() bool { return b.Data != nil || b.Size != nil }

// capacity returns the number of usable bytes.
func (b Buffer) capacity() uint64 {
	if b.Size != nil && *b.Size < uint64(len(b.Data)) {
		return *b.Size
	}
	return uint64(len(b.Data))
}

// setSize writes back the produced or consumed byte count.
func (b Buffer) setSize(n uint64) {
	if b.Size != nil {
		*b.Size = n
	}
}
