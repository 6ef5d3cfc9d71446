// Package bytesconv converts between typed scalar slices and their raw byte
// representation. Query buffers are opaque byte extents; these helpers are the
// single place the engine reinterprets them.
package bytesconv

import "unsafe"

// Load reads one value of type T from the start of b.
// b must hold at least unsafe.Sizeof(T) bytes.
func Load[T any](b []byte) T {
	return *(*T)(unsafe.Pointer(&b[0]))
}

// Store writes v at the start of b.
// b must hold at least unsafe.Sizeof(T) bytes.
func Store[T any](b []byte, v T) {
	*(*T)(unsafe.Pointer(&b[0])) = v
}

// Bytes views a typed slice as raw bytes without copying.
func Bytes[T any](v []T) []byte {
	if len(v) == 0 {
		return nil
	}
	n := len(v) * int(unsafe.Sizeof(v[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), n)
}
