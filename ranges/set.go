package ranges

import (
	"errors"
	"fmt"

	"github.com/axisdb/axisdb/datatype"
)

// ErrOutOfDomain is returned when a range is not contained in the superset.
var ErrOutOfDomain = errors.New("range is out of domain")

// SetAndSuperset holds the ranges selected on one dimension, constrained by
// the dimension's declared domain (the superset).
//
// The default state and the empty state are distinct: a default set stands
// for the implicit full domain; an empty set selects nothing.
type SetAndSuperset struct {
	dtype    datatype.Datatype
	superset Range
	ranges   []Range

	isDefault             bool
	explicitlyInitialized bool
}

// NewSetAndSuperset creates a set over the given domain. If implicitDefault
// is true the set starts in the default state, standing for the full domain.
func NewSetAndSuperset(dt datatype.Datatype, superset Range, implicitDefault bool) *SetAndSuperset {
	return &SetAndSuperset{
		dtype:     dt,
		superset:  superset.Clone(),
		isDefault: implicitDefault,
	}
}

// Datatype returns the scalar type the ranges are interpreted in.
func (s *SetAndSuperset) Datatype() datatype.Datatype { return s.dtype }

// Superset returns the declared domain.
func (s *SetAndSuperset) Superset() Range { return s.superset }

// AddRange adds a range after checking containment in the superset.
//
// With readOnly set, an out-of-domain range is cropped to the superset
// instead of rejected; writes reject it. Adding the first explicit range
// clears the default state.
func (s *SetAndSuperset) AddRange(r Range, readOnly bool) error {
	if r.IsEmpty() {
		return fmt.Errorf("%w: cannot add an empty range", ErrOutOfDomain)
	}
	if len(r) != len(s.superset) {
		return fmt.Errorf("range width %d does not match domain width %d", len(r), len(s.superset))
	}
	if !containsEndpoints(s.dtype, s.superset, r) {
		if !readOnly {
			return fmt.Errorf("%w: range not contained in %s domain", ErrOutOfDomain, s.dtype)
		}
		r = s.crop(r)
	}
	if s.isDefault {
		s.ranges = s.ranges[:0]
		s.isDefault = false
	}
	s.ranges = append(s.ranges, r.Clone())
	s.explicitlyInitialized = true
	return nil
}

// crop intersects r with the superset.
func (s *SetAndSuperset) crop(r Range) Range {
	size := s.dtype.Size()
	out := r.Clone()
	if LowerBoundLT(s.dtype, out, s.superset) {
		copy(out.Start(size), s.superset.Start(size))
	}
	if UpperBoundGT(s.dtype, out, s.superset) {
		copy(out.End(size), s.superset.End(size))
	}
	return out
}

// Ranges returns the ordered list of explicit ranges.
func (s *SetAndSuperset) Ranges() []Range { return s.ranges }

// NumRanges returns the number of explicit ranges.
func (s *SetAndSuperset) NumRanges() int { return len(s.ranges) }

// IsEmpty reports whether the set holds no explicit ranges and is not in the
// default state.
func (s *SetAndSuperset) IsEmpty() bool { return !s.isDefault && len(s.ranges) == 0 }

// IsDefault reports whether the set implicitly stands for the full domain.
func (s *SetAndSuperset) IsDefault() bool { return s.isDefault }

// IsExplicitlyInitialized reports whether an explicit range was ever added.
func (s *SetAndSuperset) IsExplicitlyInitialized() bool { return s.explicitlyInitialized }
