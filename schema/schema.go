// Package schema describes arrays: dimensions, attributes, and the dimension
// label references that attach an external coordinate system to a dimension.
package schema

import (
	"errors"
	"fmt"

	"github.com/axisdb/axisdb/datatype"
	"github.com/axisdb/axisdb/ranges"
)

// CellValVar marks a variable-length cell value number.
const CellValVar uint32 = 0xFFFFFFFF

var (
	// ErrInvalidSchema is returned when a schema fails validation.
	ErrInvalidSchema = errors.New("invalid array schema")

	// ErrUnknownField is returned when a dimension, attribute, or label name
	// does not exist in the schema.
	ErrUnknownField = errors.New("unknown field")
)

// ArrayType distinguishes dense and sparse arrays.
type ArrayType uint8

const (
	Dense ArrayType = iota
	Sparse
)

func (t ArrayType) String() string {
	if t == Dense {
		return "DENSE"
	}
	return "SPARSE"
}

// Dimension is one axis of an array with a declared closed domain.
type Dimension struct {
	Name       string            `json:"name"`
	Type       datatype.Datatype `json:"type"`
	Domain     ranges.Range      `json:"domain"`
	CellValNum uint32            `json:"cell_val_num"`
}

// NewDimension creates a fixed-size scalar dimension.
func NewDimension(name string, dt datatype.Datatype, domain ranges.Range) Dimension {
	return Dimension{Name: name, Type: dt, Domain: domain, CellValNum: 1}
}

// DomainSize returns the number of cells in the dimension domain.
// The dimension type must be integer-like.
func (d Dimension) DomainSize() (uint64, error) {
	if !d.Type.IsInteger() {
		return 0, fmt.Errorf("%w: domain size undefined for datatype %s", ErrInvalidSchema, d.Type)
	}
	switch d.Type.Size() {
	case 1:
		if d.Type == datatype.Uint8 {
			lo, hi := ranges.Values[uint8](d.Domain)
			return uint64(hi) - uint64(lo) + 1, nil
		}
		lo, hi := ranges.Values[int8](d.Domain)
		return uint64(int64(hi) - int64(lo) + 1), nil
	case 2:
		if d.Type == datatype.Uint16 {
			lo, hi := ranges.Values[uint16](d.Domain)
			return uint64(hi) - uint64(lo) + 1, nil
		}
		lo, hi := ranges.Values[int16](d.Domain)
		return uint64(int64(hi) - int64(lo) + 1), nil
	case 4:
		if d.Type == datatype.Uint32 {
			lo, hi := ranges.Values[uint32](d.Domain)
			return uint64(hi) - uint64(lo) + 1, nil
		}
		lo, hi := ranges.Values[int32](d.Domain)
		return uint64(int64(hi) - int64(lo) + 1), nil
	default:
		if d.Type == datatype.Uint64 {
			lo, hi := ranges.Values[uint64](d.Domain)
			return hi - lo + 1, nil
		}
		lo, hi := ranges.Values[int64](d.Domain)
		return uint64(hi - lo + 1), nil
	}
}

// Equal reports whether two dimensions agree in type, domain, and cell value
// number. Names are not compared; sibling arrays rename the shared axis.
func (d Dimension) Equal(o Dimension) bool {
	if d.Type != o.Type || d.CellValNum != o.CellValNum {
		return false
	}
	if len(d.Domain) != len(o.Domain) {
		return false
	}
	return ranges.LowerBoundEQ(d.Type, d.Domain, o.Domain) &&
		ranges.UpperBoundEQ(d.Type, d.Domain, o.Domain)
}

// Attribute is one value field stored per cell.
type Attribute struct {
	Name       string            `json:"name"`
	Type       datatype.Datatype `json:"type"`
	CellValNum uint32            `json:"cell_val_num"`
	Nullable   bool              `json:"nullable,omitempty"`
}

// NewAttribute creates a fixed-size scalar attribute.
func NewAttribute(name string, dt datatype.Datatype) Attribute {
	return Attribute{Name: name, Type: dt, CellValNum: 1}
}

// ArraySchema describes one array and the labels attached to its dimensions.
type ArraySchema struct {
	Type            ArrayType        `json:"array_type"`
	Dimensions      []Dimension      `json:"dimensions"`
	Attributes      []Attribute      `json:"attributes"`
	DimensionLabels []LabelReference `json:"dimension_labels,omitempty"`
	WriteVersion    uint32           `json:"write_version"`
}

// New creates a schema and validates it.
func New(t ArrayType, dims []Dimension, attrs []Attribute, labels []LabelReference) (*ArraySchema, error) {
	s := &ArraySchema{
		Type:            t,
		Dimensions:      dims,
		Attributes:      attrs,
		DimensionLabels: labels,
		WriteVersion:    FormatVersion,
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

// FormatVersion is the on-disk format version written into new fragments.
const FormatVersion uint32 = 1

// Check validates the schema.
func (s *ArraySchema) Check() error {
	if len(s.Dimensions) == 0 {
		return fmt.Errorf("%w: no dimensions", ErrInvalidSchema)
	}
	seen := make(map[string]struct{})
	for _, d := range s.Dimensions {
		if d.Name == "" {
			return fmt.Errorf("%w: unnamed dimension", ErrInvalidSchema)
		}
		if !d.Type.IsValid() {
			return fmt.Errorf("%w: dimension %q has invalid datatype", ErrInvalidSchema, d.Name)
		}
		if d.Domain.IsEmpty() {
			return fmt.Errorf("%w: dimension %q has no domain", ErrInvalidSchema, d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("%w: duplicate field name %q", ErrInvalidSchema, d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	for _, a := range s.Attributes {
		if a.Name == "" {
			return fmt.Errorf("%w: unnamed attribute", ErrInvalidSchema)
		}
		if !a.Type.IsValid() {
			return fmt.Errorf("%w: attribute %q has invalid datatype", ErrInvalidSchema, a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("%w: duplicate field name %q", ErrInvalidSchema, a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	for i, l := range s.DimensionLabels {
		if err := l.check(s); err != nil {
			return fmt.Errorf("dimension label %d: %w", i, err)
		}
	}
	return nil
}

// Dense reports whether the array is dense.
func (s *ArraySchema) Dense() bool { return s.Type == Dense }

// DimNum returns the number of dimensions.
func (s *ArraySchema) DimNum() int { return len(s.Dimensions) }

// Dimension returns the dimension at index d.
func (s *ArraySchema) Dimension(d int) (Dimension, error) {
	if d < 0 || d >= len(s.Dimensions) {
		return Dimension{}, fmt.Errorf("%w: dimension index %d", ErrUnknownField, d)
	}
	return s.Dimensions[d], nil
}

// Attribute returns the attribute with the given name.
func (s *ArraySchema) Attribute(name string) (Attribute, error) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, nil
		}
	}
	return Attribute{}, fmt.Errorf("%w: attribute %q", ErrUnknownField, name)
}

// IsDimension reports whether name names a dimension.
func (s *ArraySchema) IsDimension(name string) bool {
	for _, d := range s.Dimensions {
		if d.Name == name {
			return true
		}
	}
	return false
}

// FieldType returns the datatype of the dimension or attribute with the
// given name.
func (s *ArraySchema) FieldType(name string) (datatype.Datatype, error) {
	for _, d := range s.Dimensions {
		if d.Name == name {
			return d.Type, nil
		}
	}
	for _, a := range s.Attributes {
		if a.Name == name {
			return a.Type, nil
		}
	}
	return 0, fmt.Errorf("%w: field %q", ErrUnknownField, name)
}

// LabelReference returns the dimension label reference with the given name.
func (s *ArraySchema) LabelReference(name string) (LabelReference, error) {
	for _, l := range s.DimensionLabels {
		if l.Name == name {
			return l, nil
		}
	}
	return LabelReference{}, fmt.Errorf("%w: dimension label %q", ErrUnknownField, name)
}

// LabelReferenceForDim returns the label attached to dimension d, if any.
func (s *ArraySchema) LabelReferenceForDim(d int) (LabelReference, bool) {
	for _, l := range s.DimensionLabels {
		if l.DimensionIndex == d {
			return l, true
		}
	}
	return LabelReference{}, false
}
