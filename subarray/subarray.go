// Package subarray implements the per-dimension range specification of a
// query: one range set per array dimension, plus optional label range sets
// that are resolved into index ranges before the query executes.
package subarray

import (
	"errors"
	"fmt"

	"github.com/axisdb/axisdb/datatype"
	"github.com/axisdb/axisdb/ranges"
	"github.com/axisdb/axisdb/schema"
)

var (
	// ErrInvalidRange is returned for malformed range arguments.
	ErrInvalidRange = errors.New("invalid range")

	// ErrLabelConflict is returned when a second label name is used on a
	// dimension that already carries label ranges.
	ErrLabelConflict = errors.New("dimension already has ranges for another label")
)

// labelRanges holds the label side of one dimension: the fixed label name
// and the ranges interpreted in the label's value domain.
type labelRanges struct {
	name string
	set  *ranges.SetAndSuperset
}

// Subarray is the parent query's per-dimension range specification.
type Subarray struct {
	schema *schema.ArraySchema
	dims   []*ranges.SetAndSuperset
	labels []*labelRanges
}

// New creates a subarray with every dimension in the default state, standing
// for the full domain.
func New(s *schema.ArraySchema) *Subarray {
	dims := make([]*ranges.SetAndSuperset, s.DimNum())
	for i, d := range s.Dimensions {
		dims[i] = ranges.NewSetAndSuperset(d.Type, d.Domain, true)
	}
	return &Subarray{
		schema: s,
		dims:   dims,
		labels: make([]*labelRanges, s.DimNum()),
	}
}

// Schema returns the array schema the subarray ranges over.
func (s *Subarray) Schema() *schema.ArraySchema { return s.schema }

// DimNum returns the number of dimensions.
func (s *Subarray) DimNum() int { return len(s.dims) }

func (s *Subarray) checkDim(d int) error {
	if d < 0 || d >= len(s.dims) {
		return fmt.Errorf("%w: dimension index %d out of bounds", ErrInvalidRange, d)
	}
	return nil
}

// AddRange adds an index range on dimension d, checking domain containment.
func (s *Subarray) AddRange(d int, r ranges.Range) error {
	if err := s.checkDim(d); err != nil {
		return err
	}
	return s.dims[d].AddRange(r, false)
}

// AddPointRanges adds count point ranges on dimension d from a packed array
// of scalar values, one [p, p] range per value.
func (s *Subarray) AddPointRanges(d int, points []byte, count int) error {
	if err := s.checkDim(d); err != nil {
		return err
	}
	size := s.schema.Dimensions[d].Type.Size()
	if uint64(len(points)) < uint64(count)*size {
		return fmt.Errorf("%w: %d points do not fit in %d bytes", ErrInvalidRange, count, len(points))
	}
	for i := 0; i < count; i++ {
		p := points[uint64(i)*size : uint64(i+1)*size]
		if err := s.dims[d].AddRange(ranges.FromBytes(p, p), false); err != nil {
			return err
		}
	}
	return nil
}

// SetRangesForDim replaces the ranges on dimension d. An empty list leaves
// the dimension explicitly initialized with no selection.
func (s *Subarray) SetRangesForDim(d int, rs []ranges.Range) error {
	if err := s.checkDim(d); err != nil {
		return err
	}
	dim := s.schema.Dimensions[d]
	set := ranges.NewSetAndSuperset(dim.Type, dim.Domain, false)
	for _, r := range rs {
		if err := set.AddRange(r, false); err != nil {
			return err
		}
	}
	s.dims[d] = set
	return nil
}

// RangesForDim returns the ranges selected on dimension d. A dimension in
// the default state returns the single full-domain range.
func (s *Subarray) RangesForDim(d int) ([]ranges.Range, error) {
	if err := s.checkDim(d); err != nil {
		return nil, err
	}
	if s.dims[d].IsDefault() {
		return []ranges.Range{s.schema.Dimensions[d].Domain.Clone()}, nil
	}
	return s.dims[d].Ranges(), nil
}

// IsDefault reports whether dimension d still stands for its full domain.
func (s *Subarray) IsDefault(d int) bool {
	return d >= 0 && d < len(s.dims) && s.dims[d].IsDefault()
}

// IsEmpty reports whether dimension d is explicitly initialized with no
// selection.
func (s *Subarray) IsEmpty(d int) bool {
	return d >= 0 && d < len(s.dims) && s.dims[d].IsEmpty()
}

// AddLabelRange adds a range on dimension d interpreted in the value domain
// of the named dimension label. The first label range fixes the label name
// for the dimension; ranges for a different label are rejected.
func (s *Subarray) AddLabelRange(d int, name string, r ranges.Range) error {
	if err := s.checkDim(d); err != nil {
		return err
	}
	ref, err := s.schema.LabelReference(name)
	if err != nil {
		return err
	}
	if ref.DimensionIndex != d {
		return fmt.Errorf("%w: label %q is declared on dimension %d, not %d",
			ErrInvalidRange, name, ref.DimensionIndex, d)
	}
	if lr := s.labels[d]; lr != nil {
		if lr.name != name {
			return fmt.Errorf("%w: dimension %d already ranges over label %q",
				ErrLabelConflict, d, lr.name)
		}
		return lr.set.AddRange(r, true)
	}
	set := ranges.NewSetAndSuperset(ref.LabelType, ref.LabelDomain, false)
	if err := set.AddRange(r, true); err != nil {
		return err
	}
	s.labels[d] = &labelRanges{name: name, set: set}
	return nil
}

// HasLabelRanges reports whether dimension d carries label ranges.
func (s *Subarray) HasLabelRanges(d int) bool {
	return d >= 0 && d < len(s.labels) && s.labels[d] != nil && !s.labels[d].set.IsEmpty()
}

// HasAnyLabelRanges reports whether any dimension carries label ranges.
func (s *Subarray) HasAnyLabelRanges() bool {
	for d := range s.labels {
		if s.HasLabelRanges(d) {
			return true
		}
	}
	return false
}

// LabelName returns the label name fixed on dimension d.
func (s *Subarray) LabelName(d int) (string, error) {
	if err := s.checkDim(d); err != nil {
		return "", err
	}
	if s.labels[d] == nil {
		return "", fmt.Errorf("%w: dimension %d has no label ranges", ErrInvalidRange, d)
	}
	return s.labels[d].name, nil
}

// LabelRangesForDim returns the label range set on dimension d.
func (s *Subarray) LabelRangesForDim(d int) (*ranges.SetAndSuperset, error) {
	if err := s.checkDim(d); err != nil {
		return nil, err
	}
	if s.labels[d] == nil {
		return nil, fmt.Errorf("%w: dimension %d has no label ranges", ErrInvalidRange, d)
	}
	return s.labels[d].set, nil
}

// LabelRanges returns the label range set added under the given label name.
func (s *Subarray) LabelRanges(name string) (*ranges.SetAndSuperset, error) {
	for _, lr := range s.labels {
		if lr != nil && lr.name == name {
			return lr.set, nil
		}
	}
	return nil, fmt.Errorf("%w: no label ranges for %q", ErrInvalidRange, name)
}

// DimDatatype returns the datatype of dimension d.
func (s *Subarray) DimDatatype(d int) (datatype.Datatype, error) {
	if err := s.checkDim(d); err != nil {
		return 0, err
	}
	return s.schema.Dimensions[d].Type, nil
}
