// Package dimlabel implements dimension labels: the sibling array pair that
// maps between a parent dimension's indices and an external coordinate
// system, the bounded-search range queries that translate label ranges into
// index ranges, the data queries that read and write label values, and the
// per-parent-query aggregate that orchestrates all of them.
package dimlabel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/axisdb/axisdb/schema"
	"github.com/axisdb/axisdb/storage"
)

// DimensionLabel owns the two sibling arrays of one label: the dense
// indexed array (index -> label) and the sparse labelled array
// (label -> index). Both open and close together under one query type,
// encryption, and timestamp window.
type DimensionLabel struct {
	ctx       *storage.Context
	uri       string
	ref       schema.LabelReference
	parentDim schema.Dimension

	indexed  *storage.Array
	labelled *storage.Array

	open         bool
	indexedOpen  bool
	labelledOpen bool
	queryType    storage.QueryType
}

// NewDimensionLabel creates a handle on the label stored under the parent
// array at parentURI, as declared by the label reference.
func NewDimensionLabel(c *storage.Context, parentURI string, ref schema.LabelReference, parentDim schema.Dimension) *DimensionLabel {
	uri := filepath.Join(parentURI, filepath.FromSlash(ref.URI))
	return &DimensionLabel{
		ctx:       c,
		uri:       uri,
		ref:       ref,
		parentDim: parentDim,
		indexed:   storage.NewArray(c, filepath.Join(uri, storage.IndexedArrayName)),
		labelled:  storage.NewArray(c, filepath.Join(uri, storage.LabelledArrayName)),
	}
}

// Open opens both sibling arrays under one query type and timestamp window
// and validates the stored label against its declaration. The openIndexed
// and openLabelled flags record which side the caller intends to query;
// there is currently no way to open just one of the arrays.
func (dl *DimensionLabel) Open(qt storage.QueryType, tsStart, tsEnd uint64, enc storage.EncryptionType, key []byte, openIndexed, openLabelled bool) error {
	if dl.open {
		return fmt.Errorf("%w: label %q", storage.ErrArrayAlreadyOpen, dl.ref.Name)
	}
	if !openIndexed && !openLabelled {
		return fmt.Errorf("%w: opening a label requires at least one array", ErrInvalidArgument)
	}
	if err := dl.checkStoredReference(); err != nil {
		return err
	}
	if err := dl.indexed.Open(qt, tsStart, tsEnd, enc, key); err != nil {
		return err
	}
	if err := dl.labelled.Open(qt, tsStart, tsEnd, enc, key); err != nil {
		dl.indexed.Close()
		return err
	}
	if err := dl.validateSchemas(); err != nil {
		dl.indexed.Close()
		dl.labelled.Close()
		return err
	}
	dl.open = true
	dl.indexedOpen = openIndexed
	dl.labelledOpen = openLabelled
	dl.queryType = qt
	dl.ctx.Logger().Debug("dimension label opened",
		"label", dl.ref.Name, "query_type", qt.String(), "order", dl.ref.Order.String())
	return nil
}

// checkStoredReference compares the declaration stored beside the sibling
// arrays with the parent schema's label reference.
func (dl *DimensionLabel) checkStoredReference() error {
	data, err := os.ReadFile(filepath.Join(dl.uri, storage.LabelSchemaFileName))
	if err != nil {
		return fmt.Errorf("%w: label %q has no stored declaration: %v",
			ErrLabelSchemaMismatch, dl.ref.Name, err)
	}
	var stored schema.LabelReference
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("%w: label %q declaration unreadable: %v",
			ErrLabelSchemaMismatch, dl.ref.Name, err)
	}
	if stored.Order != dl.ref.Order {
		return fmt.Errorf("%w: stored label order is %s, expected %s",
			ErrLabelSchemaMismatch, stored.Order, dl.ref.Order)
	}
	if stored.LabelType != dl.ref.LabelType {
		return fmt.Errorf("%w: stored label datatype is %s, expected %s",
			ErrLabelSchemaMismatch, stored.LabelType, dl.ref.LabelType)
	}
	if stored.LabelCellValNum != dl.ref.LabelCellValNum {
		return fmt.Errorf("%w: stored label cell value number is %d, expected %d",
			ErrLabelSchemaMismatch, stored.LabelCellValNum, dl.ref.LabelCellValNum)
	}
	return nil
}

// validateSchemas checks the opened sibling schemas against the label
// reference and the parent dimension.
func (dl *DimensionLabel) validateSchemas() error {
	indexedSchema, err := dl.indexed.Schema()
	if err != nil {
		return err
	}
	if err := dl.ref.CheckCompatibleIndexed(indexedSchema, dl.parentDim); err != nil {
		return fmt.Errorf("%w: label %q: %v", ErrLabelSchemaMismatch, dl.ref.Name, err)
	}
	if dl.ref.Order != schema.UnorderedLabels && !indexedSchema.Dense() {
		return fmt.Errorf("%w: label %q: ordered labels require a dense indexed array",
			ErrLabelSchemaMismatch, dl.ref.Name)
	}
	labelledSchema, err := dl.labelled.Schema()
	if err != nil {
		return err
	}
	if err := dl.ref.CheckCompatibleLabelled(labelledSchema, dl.parentDim); err != nil {
		return fmt.Errorf("%w: label %q: %v", ErrLabelSchemaMismatch, dl.ref.Name, err)
	}
	return nil
}

// Close closes both sibling arrays. Idempotent.
func (dl *DimensionLabel) Close() {
	dl.indexed.Close()
	dl.labelled.Close()
	dl.open = false
	dl.indexedOpen = false
	dl.labelledOpen = false
}

// IndexedArray returns the dense sibling mapping index -> label.
func (dl *DimensionLabel) IndexedArray() *storage.Array { return dl.indexed }

// LabelledArray returns the sparse sibling mapping label -> index.
func (dl *DimensionLabel) LabelledArray() *storage.Array { return dl.labelled }

// Ref returns the label declaration.
func (dl *DimensionLabel) Ref() schema.LabelReference { return dl.ref }

// ParentDim returns the parent dimension the label attaches to.
func (dl *DimensionLabel) ParentDim() schema.Dimension { return dl.parentDim }

// Order returns the declared label order.
func (dl *DimensionLabel) Order() schema.LabelOrder { return dl.ref.Order }

// QueryType returns the mode the label was opened under.
func (dl *DimensionLabel) QueryType() storage.QueryType { return dl.queryType }
