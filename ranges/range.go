// Package ranges provides the typed closed-interval primitive used on both
// the index and label paths, and the domain-constrained range set built on
// top of it.
//
// A Range stores its two endpoints as raw bytes of a single scalar datatype.
// All comparisons and endpoint stepping dispatch on the datatype tag; the
// calendar and clock datatypes dispatch to the int64 implementation.
package ranges

import (
	"errors"
	"fmt"

	"github.com/axisdb/axisdb/datatype"
	"github.com/axisdb/axisdb/internal/bytesconv"
)

// ErrNoStep is returned when endpoint stepping is requested for a datatype
// without a representable ±1 step (the floating-point types).
var ErrNoStep = errors.New("datatype has no representable step")

// Range is a closed interval [lo, hi] over one scalar datatype, stored as
// the raw bytes of the two endpoints. A nil or empty Range denotes absent.
type Range []byte

// Make builds a Range from two typed endpoints.
func Make[T Scalar](lo, hi T) Range {
	var zero T
	size := int(sizeOf(zero))
	r := make(Range, 2*size)
	bytesconv.Store(r[:size], lo)
	bytesconv.Store(r[size:], hi)
	return r
}

// FromBytes builds a Range by copying the raw lower and upper endpoints.
// The two byte slices must have equal length.
func FromBytes(lo, hi []byte) Range {
	r := make(Range, len(lo)+len(hi))
	copy(r, lo)
	copy(r[len(lo):], hi)
	return r
}

// Scalar enumerates the admissible endpoint types.
type Scalar interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

func sizeOf[T Scalar](T) uintptr {
	var zero T
	switch any(zero).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	default:
		return 8
	}
}

// IsEmpty reports whether the range is absent.
func (r Range) IsEmpty() bool { return len(r) == 0 }

// Start returns the raw bytes of the lower endpoint for a scalar of the
// given byte width. The returned slice aliases the range.
func (r Range) Start(size uint64) []byte { return r[:size] }

// End returns the raw bytes of the upper endpoint. The returned slice
// aliases the range.
func (r Range) End(size uint64) []byte { return r[size : 2*size] }

// Clone returns a copy that shares no storage with r.
func (r Range) Clone() Range {
	if r.IsEmpty() {
		return nil
	}
	out := make(Range, len(r))
	copy(out, r)
	return out
}

// Values decodes the two endpoints of r as type T.
func Values[T Scalar](r Range) (lo, hi T) {
	var zero T
	size := int(sizeOf(zero))
	return bytesconv.Load[T](r[:size]), bytesconv.Load[T](r[size:])
}

// normalize maps the calendar and clock datatypes onto int64.
func normalize(dt datatype.Datatype) datatype.Datatype {
	if dt.IsDatetime() {
		return datatype.Int64
	}
	return dt
}

func compareAt[T Scalar](a, b Range, off uintptr) int {
	av := bytesconv.Load[T](a[off:])
	bv := bytesconv.Load[T](b[off:])
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

func compareEndpoint(dt datatype.Datatype, a, b Range, upper bool) int {
	var off uintptr
	if upper {
		off = uintptr(dt.Size())
	}
	switch normalize(dt) {
	case datatype.Int8:
		return compareAt[int8](a, b, off)
	case datatype.Int16:
		return compareAt[int16](a, b, off)
	case datatype.Int32:
		return compareAt[int32](a, b, off)
	case datatype.Int64:
		return compareAt[int64](a, b, off)
	case datatype.Uint8:
		return compareAt[uint8](a, b, off)
	case datatype.Uint16:
		return compareAt[uint16](a, b, off)
	case datatype.Uint32:
		return compareAt[uint32](a, b, off)
	case datatype.Uint64:
		return compareAt[uint64](a, b, off)
	case datatype.Float32:
		return compareAt[float32](a, b, off)
	case datatype.Float64:
		return compareAt[float64](a, b, off)
	default:
		panic(fmt.Sprintf("ranges: datatype %s not supported", dt))
	}
}

// CompareValues orders two raw scalar values of the given datatype,
// returning -1, 0, or 1.
func CompareValues(dt datatype.Datatype, a, b []byte) int {
	return compareEndpoint(dt, Range(a), Range(b), false)
}

// ContainsValue reports whether the raw scalar value v lies inside r.
func ContainsValue(dt datatype.Datatype, r Range, v []byte) bool {
	size := dt.Size()
	return CompareValues(dt, v, r.Start(size)) >= 0 &&
		CompareValues(dt, v, r.End(size)) <= 0
}

// LowerBoundLT reports a.lo < b.lo under the datatype's natural order.
func LowerBoundLT(dt datatype.Datatype, a, b Range) bool {
	return compareEndpoint(dt, a, b, false) < 0
}

// LowerBoundEQ reports a.lo == b.lo.
func LowerBoundEQ(dt datatype.Datatype, a, b Range) bool {
	return compareEndpoint(dt, a, b, false) == 0
}

// LowerBoundGT reports a.lo > b.lo.
func LowerBoundGT(dt datatype.Datatype, a, b Range) bool {
	return compareEndpoint(dt, a, b, false) > 0
}

// UpperBoundLT reports a.hi < b.hi.
func UpperBoundLT(dt datatype.Datatype, a, b Range) bool {
	return compareEndpoint(dt, a, b, true) < 0
}

// UpperBoundEQ reports a.hi == b.hi.
func UpperBoundEQ(dt datatype.Datatype, a, b Range) bool {
	return compareEndpoint(dt, a, b, true) == 0
}

// UpperBoundGT reports a.hi > b.hi.
func UpperBoundGT(dt datatype.Datatype, a, b Range) bool {
	return compareEndpoint(dt, a, b, true) > 0
}

func stepAt[T ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64](r Range, off uintptr, delta int) {
	v := bytesconv.Load[T](r[off:])
	if delta > 0 {
		v++
	} else {
		v--
	}
	bytesconv.Store(r[off:], v)
}

func step(dt datatype.Datatype, r Range, upper bool, delta int) error {
	var off uintptr
	if upper {
		off = uintptr(dt.Size())
	}
	switch normalize(dt) {
	case datatype.Int8:
		stepAt[int8](r, off, delta)
	case datatype.Int16:
		stepAt[int16](r, off, delta)
	case datatype.Int32:
		stepAt[int32](r, off, delta)
	case datatype.Int64:
		stepAt[int64](r, off, delta)
	case datatype.Uint8:
		stepAt[uint8](r, off, delta)
	case datatype.Uint16:
		stepAt[uint16](r, off, delta)
	case datatype.Uint32:
		stepAt[uint32](r, off, delta)
	case datatype.Uint64:
		stepAt[uint64](r, off, delta)
	default:
		return fmt.Errorf("%w: %s", ErrNoStep, dt)
	}
	return nil
}

// DecreaseLowerBound steps the lower endpoint down by one representable value.
func DecreaseLowerBound(dt datatype.Datatype, r Range) error {
	return step(dt, r, false, -1)
}

// IncreaseLowerBound steps the lower endpoint up by one representable value.
func IncreaseLowerBound(dt datatype.Datatype, r Range) error {
	return step(dt, r, false, +1)
}

// DecreaseUpperBound steps the upper endpoint down by one representable value.
// Callers guarantee hi > lo before invoking.
func DecreaseUpperBound(dt datatype.Datatype, r Range) error {
	return step(dt, r, true, -1)
}

// IncreaseUpperBound steps the upper endpoint up by one representable value.
func IncreaseUpperBound(dt datatype.Datatype, r Range) error {
	return step(dt, r, true, +1)
}

// containsEndpoints reports superset.lo <= r.lo and r.hi <= superset.hi.
func containsEndpoints(dt datatype.Datatype, superset, r Range) bool {
	return !LowerBoundLT(dt, r, superset) && !UpperBoundGT(dt, r, superset)
}
