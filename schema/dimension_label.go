package schema

import (
	"fmt"

	"github.com/axisdb/axisdb/datatype"
	"github.com/axisdb/axisdb/ranges"
)

// LabelOrder declares how label values relate to index values.
type LabelOrder uint8

const (
	// IncreasingLabels means labels are a monotonically non-decreasing
	// function of the index.
	IncreasingLabels LabelOrder = iota

	// DecreasingLabels means labels are a monotonically non-increasing
	// function of the index.
	DecreasingLabels

	// UnorderedLabels means no monotonic relationship is declared.
	UnorderedLabels
)

func (o LabelOrder) String() string {
	switch o {
	case IncreasingLabels:
		return "INCREASING"
	case DecreasingLabels:
		return "DECREASING"
	case UnorderedLabels:
		return "UNORDERED"
	default:
		return fmt.Sprintf("LABEL_ORDER(%d)", uint8(o))
	}
}

// Field names shared by every pair of label sibling arrays. The indexed
// array maps index -> label; the labelled array maps label -> index.
const (
	IndexFieldName = "index"
	LabelFieldName = "label"
)

// LabelReference declares a dimension label on the parent schema. It is the
// authoritative definition the physical label arrays are validated against
// when opened.
type LabelReference struct {
	Name            string            `json:"name"`
	DimensionIndex  int               `json:"dimension_index"`
	Order           LabelOrder        `json:"order"`
	LabelType       datatype.Datatype `json:"label_type"`
	LabelDomain     ranges.Range      `json:"label_domain"`
	LabelCellValNum uint32            `json:"label_cell_val_num"`
	URI             string            `json:"uri"`
}

// NewLabelReference declares a fixed-size label on dimension dimIdx. The
// label's storage URI is relative to the parent array.
func NewLabelReference(name string, dimIdx int, order LabelOrder, dt datatype.Datatype, domain ranges.Range) LabelReference {
	return LabelReference{
		Name:            name,
		DimensionIndex:  dimIdx,
		Order:           order,
		LabelType:       dt,
		LabelDomain:     domain,
		LabelCellValNum: 1,
		URI:             "__labels/" + name,
	}
}

func (l LabelReference) check(parent *ArraySchema) error {
	if l.Name == "" {
		return fmt.Errorf("%w: unnamed dimension label", ErrInvalidSchema)
	}
	if l.DimensionIndex < 0 || l.DimensionIndex >= len(parent.Dimensions) {
		return fmt.Errorf("%w: label %q attached to unknown dimension %d",
			ErrInvalidSchema, l.Name, l.DimensionIndex)
	}
	if !l.LabelType.IsValid() {
		return fmt.Errorf("%w: label %q has invalid datatype", ErrInvalidSchema, l.Name)
	}
	if l.LabelDomain.IsEmpty() {
		return fmt.Errorf("%w: label %q has no domain", ErrInvalidSchema, l.Name)
	}
	if l.Order != UnorderedLabels && l.LabelCellValNum != 1 {
		return fmt.Errorf("%w: ordered label %q must have fixed-size values",
			ErrInvalidSchema, l.Name)
	}
	if !parent.Dimensions[l.DimensionIndex].Type.IsInteger() {
		return fmt.Errorf("%w: label %q requires an integer-like index datatype",
			ErrInvalidSchema, l.Name)
	}
	for _, other := range parent.DimensionLabels {
		if other.Name == l.Name && other.DimensionIndex != l.DimensionIndex {
			return fmt.Errorf("%w: duplicate label name %q", ErrInvalidSchema, l.Name)
		}
	}
	return nil
}

// IndexedArraySchema derives the schema of the dense sibling array: one
// dimension over the parent dimension's domain, one label-valued attribute.
func (l LabelReference) IndexedArraySchema(parentDim Dimension) (*ArraySchema, error) {
	dim := Dimension{
		Name:       IndexFieldName,
		Type:       parentDim.Type,
		Domain:     parentDim.Domain.Clone(),
		CellValNum: parentDim.CellValNum,
	}
	attr := Attribute{Name: LabelFieldName, Type: l.LabelType, CellValNum: l.LabelCellValNum}
	return New(Dense, []Dimension{dim}, []Attribute{attr}, nil)
}

// LabelledArraySchema derives the schema of the sparse sibling array: one
// dimension over the label domain, one index-valued attribute.
//
// For unordered labels the indexed sibling is sparse as well, with the index
// as its dimension; that variant shares this schema shape with the roles of
// the two fields swapped.
func (l LabelReference) LabelledArraySchema(parentDim Dimension) (*ArraySchema, error) {
	dim := Dimension{
		Name:       LabelFieldName,
		Type:       l.LabelType,
		Domain:     l.LabelDomain.Clone(),
		CellValNum: l.LabelCellValNum,
	}
	attr := Attribute{Name: IndexFieldName, Type: parentDim.Type, CellValNum: parentDim.CellValNum}
	return New(Sparse, []Dimension{dim}, []Attribute{attr}, nil)
}

// UnorderedIndexedArraySchema derives the indexed sibling for an unordered
// label: sparse, with the index as the dimension and the label as attribute.
func (l LabelReference) UnorderedIndexedArraySchema(parentDim Dimension) (*ArraySchema, error) {
	dim := Dimension{
		Name:       IndexFieldName,
		Type:       parentDim.Type,
		Domain:     parentDim.Domain.Clone(),
		CellValNum: parentDim.CellValNum,
	}
	attr := Attribute{Name: LabelFieldName, Type: l.LabelType, CellValNum: l.LabelCellValNum}
	return New(Sparse, []Dimension{dim}, []Attribute{attr}, nil)
}

// CheckCompatibleIndexed verifies a stored indexed-array schema against the
// reference and the parent dimension it attaches to. Any disagreement is a
// label schema mismatch surfaced by the caller.
func (l LabelReference) CheckCompatibleIndexed(stored *ArraySchema, parentDim Dimension) error {
	if len(stored.Dimensions) != 1 {
		return fmt.Errorf("indexed array must have exactly one dimension, found %d",
			len(stored.Dimensions))
	}
	if !stored.Dimensions[0].Equal(parentDim) {
		return fmt.Errorf("indexed array dimension does not match parent dimension %q",
			parentDim.Name)
	}
	attr, err := stored.Attribute(LabelFieldName)
	if err != nil {
		return err
	}
	if attr.Type != l.LabelType {
		return fmt.Errorf("stored label datatype is %s, expected %s", attr.Type, l.LabelType)
	}
	if attr.CellValNum != l.LabelCellValNum {
		return fmt.Errorf("stored label cell value number is %d, expected %d",
			attr.CellValNum, l.LabelCellValNum)
	}
	return nil
}

// CheckCompatibleLabelled verifies a stored labelled-array schema against the
// reference and the parent dimension.
func (l LabelReference) CheckCompatibleLabelled(stored *ArraySchema, parentDim Dimension) error {
	if stored.Dense() {
		return fmt.Errorf("labelled array must be sparse")
	}
	if len(stored.Dimensions) != 1 {
		return fmt.Errorf("labelled array must have exactly one dimension, found %d",
			len(stored.Dimensions))
	}
	dim := stored.Dimensions[0]
	if dim.Type != l.LabelType {
		return fmt.Errorf("stored label datatype is %s, expected %s", dim.Type, l.LabelType)
	}
	if dim.CellValNum != l.LabelCellValNum {
		return fmt.Errorf("stored label cell value number is %d, expected %d",
			dim.CellValNum, l.LabelCellValNum)
	}
	if len(dim.Domain) != len(l.LabelDomain) ||
		!ranges.LowerBoundEQ(l.LabelType, dim.Domain, l.LabelDomain) ||
		!ranges.UpperBoundEQ(l.LabelType, dim.Domain, l.LabelDomain) {
		return fmt.Errorf("stored label domain does not match the declared label domain")
	}
	attr, err := stored.Attribute(IndexFieldName)
	if err != nil {
		return err
	}
	if attr.Type != parentDim.Type {
		return fmt.Errorf("stored index datatype is %s, expected %s", attr.Type, parentDim.Type)
	}
	return nil
}
