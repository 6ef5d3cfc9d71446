package dimlabel

import (
	"context"
	"fmt"

	"github.com/axisdb/axisdb/datatype"
	"github.com/axisdb/axisdb/internal/bytesconv"
	"github.com/axisdb/axisdb/query"
	"github.com/axisdb/axisdb/schema"
	"github.com/axisdb/axisdb/storage"
	"github.com/axisdb/axisdb/subarray"
)

// DataQuery reads or writes label values, coordinating the queries against
// the indexed and labelled sibling arrays.
type DataQuery interface {
	// Process runs every child query to completion.
	Process(ctx context.Context) error

	// Status composes the child statuses. It errors only on a structural
	// inconsistency: one child initialized without the other.
	Status() (query.Status, error)

	// Completed reports whether every child finished successfully.
	Completed() bool

	// Cancel cascades to both children.
	Cancel() error

	// Finalize cascades to both children.
	Finalize() error
}

// dataQuery is the shared core of every data query variant: up to two child
// queries and the status composition over them.
type dataQuery struct {
	indexed  *query.Query
	labelled *query.Query
}

func (d *dataQuery) Process(ctx context.Context) error {
	if d.labelled != nil {
		if err := d.labelled.Submit(ctx); err != nil {
			return err
		}
	}
	if d.indexed != nil {
		if err := d.indexed.Submit(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *dataQuery) Status() (query.Status, error) {
	if d.labelled == nil && d.indexed == nil {
		return query.StatusUninitialized, nil
	}
	if d.labelled == nil || d.indexed == nil {
		only := d.indexed
		if only == nil {
			only = d.labelled
		}
		return only.Status(), nil
	}
	labelledStatus := d.labelled.Status()
	indexedStatus := d.indexed.Status()
	// Identical statuses compose to themselves. Mixed statuses resolve in
	// severity order: failed, structurally-bad, incomplete, in progress.
	if labelledStatus == indexedStatus {
		return labelledStatus, nil
	}
	if labelledStatus == query.StatusFailed || indexedStatus == query.StatusFailed {
		return query.StatusFailed, nil
	}
	if labelledStatus == query.StatusUninitialized || indexedStatus == query.StatusUninitialized {
		return query.StatusFailed, fmt.Errorf(
			"%w: dimension label query failed to fully initialize", ErrInternal)
	}
	if labelledStatus == query.StatusIncomplete || indexedStatus == query.StatusIncomplete {
		return query.StatusIncomplete, nil
	}
	return query.StatusInProgress, nil
}

func (d *dataQuery) Completed() bool {
	st, err := d.Status()
	return err == nil && st == query.StatusCompleted
}

func (d *dataQuery) Cancel() error {
	if d.indexed != nil {
		if err := d.indexed.Cancel(); err != nil {
			return err
		}
	}
	if d.labelled != nil {
		return d.labelled.Cancel()
	}
	return nil
}

func (d *dataQuery) Finalize() error {
	if d.indexed != nil {
		if err := d.indexed.Finalize(); err != nil {
			return err
		}
	}
	if d.labelled != nil {
		return d.labelled.Finalize()
	}
	return nil
}

// NewOrderedReadQuery builds the read variant: only the indexed array is
// queried, row-major, over the parent subarray's index ranges for the
// labelled dimension.
func NewOrderedReadQuery(c *storage.Context, dl *DimensionLabel, parentSubarray *subarray.Subarray, labelBuffer query.Buffer, dimIdx int) (DataQuery, error) {
	if parentSubarray == nil || dimIdx < 0 || dimIdx >= parentSubarray.DimNum() {
		return nil, fmt.Errorf("%w: no subarray ranges for dimension %d", ErrInvalidArgument, dimIdx)
	}
	indexed, err := query.New(c, dl.IndexedArray())
	if err != nil {
		return nil, err
	}
	if err := indexed.SetLayout(query.LayoutRowMajor); err != nil {
		return nil, err
	}

	indexedSchema, err := dl.IndexedArray().Schema()
	if err != nil {
		return nil, err
	}
	backing := subarray.New(indexedSchema)
	if parentSubarray.IsEmpty(dimIdx) {
		if err := backing.SetRangesForDim(0, nil); err != nil {
			return nil, err
		}
	} else if !parentSubarray.IsDefault(dimIdx) {
		rs, err := parentSubarray.RangesForDim(dimIdx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		if err := backing.SetRangesForDim(0, rs); err != nil {
			return nil, err
		}
	}
	if err := indexed.SetSubarray(backing); err != nil {
		return nil, err
	}
	if err := indexed.SetDataBuffer(schema.LabelFieldName, labelBuffer); err != nil {
		return nil, err
	}
	return &dataQuery{indexed: indexed}, nil
}

// NewOrderedWriteQuery builds the write-once variant for increasing and
// decreasing labels. The labelled array is written unordered with the label
// coordinates and index values; the indexed array is written row-major with
// the label values. Both writes publish under the shared fragment name.
//
// When the caller supplies no index buffer the full parent domain sequence
// is generated, since ordered writes always cover the whole dimension.
func NewOrderedWriteQuery(c *storage.Context, dl *DimensionLabel, parentSubarray *subarray.Subarray, labelBuffer, indexBuffer query.Buffer, dimIdx int, fragmentName string) (DataQuery, error) {
	if qt := dl.QueryType(); qt != storage.QueryTypeWrite {
		return nil, fmt.Errorf("%w: cannot write to a dimension label opened with query type %s",
			ErrInvalidArgument, qt)
	}
	indexedEmpty, err := dl.IndexedArray().IsEmpty()
	if err != nil {
		return nil, err
	}
	labelledEmpty, err := dl.LabelledArray().IsEmpty()
	if err != nil {
		return nil, err
	}
	if !indexedEmpty || !labelledEmpty {
		return nil, fmt.Errorf("%w: label %q", ErrSingleFragmentLabel, dl.Ref().Name)
	}
	if parentSubarray != nil && !parentSubarray.IsDefault(dimIdx) {
		return nil, fmt.Errorf("%w: dimension labels only support writing the full array",
			ErrInvalidArgument)
	}
	if !indexBuffer.IsSet() {
		indexBuffer = query.NewBuffer(generateIndexData(dl.ParentDim()))
	}

	labelled, err := query.New(c, dl.LabelledArray())
	if err != nil {
		return nil, err
	}
	if err := labelled.SetLayout(query.LayoutUnordered); err != nil {
		return nil, err
	}
	if err := labelled.SetDataBuffer(schema.LabelFieldName, labelBuffer); err != nil {
		return nil, err
	}
	if err := labelled.SetDataBuffer(schema.IndexFieldName, indexBuffer); err != nil {
		return nil, err
	}
	labelled.SetFragmentName(fragmentName)

	indexed, err := query.New(c, dl.IndexedArray())
	if err != nil {
		return nil, err
	}
	if err := indexed.SetLayout(query.LayoutRowMajor); err != nil {
		return nil, err
	}
	if err := indexed.SetDataBuffer(schema.LabelFieldName, labelBuffer); err != nil {
		return nil, err
	}
	indexed.SetFragmentName(fragmentName)

	return &dataQuery{indexed: indexed, labelled: labelled}, nil
}

// NewUnorderedWriteQuery builds the write variant for unordered labels.
// Both sibling arrays are sparse and written unordered; the caller must
// supply both the label and the index buffer.
func NewUnorderedWriteQuery(c *storage.Context, dl *DimensionLabel, labelBuffer, indexBuffer query.Buffer, fragmentName string) (DataQuery, error) {
	if qt := dl.QueryType(); qt != storage.QueryTypeWrite {
		return nil, fmt.Errorf("%w: cannot write to a dimension label opened with query type %s",
			ErrInvalidArgument, qt)
	}
	if !indexBuffer.IsSet() {
		return nil, fmt.Errorf("%w: unordered label %q writes require the dimension data buffer",
			ErrMissingIndexBuffer, dl.Ref().Name)
	}

	labelled, err := query.New(c, dl.LabelledArray())
	if err != nil {
		return nil, err
	}
	if err := labelled.SetLayout(query.LayoutUnordered); err != nil {
		return nil, err
	}
	if err := labelled.SetDataBuffer(schema.LabelFieldName, labelBuffer); err != nil {
		return nil, err
	}
	if err := labelled.SetDataBuffer(schema.IndexFieldName, indexBuffer); err != nil {
		return nil, err
	}
	labelled.SetFragmentName(fragmentName)

	indexed, err := query.New(c, dl.IndexedArray())
	if err != nil {
		return nil, err
	}
	if err := indexed.SetLayout(query.LayoutUnordered); err != nil {
		return nil, err
	}
	// On the indexed side of an unordered label the index is the dimension
	// and the label the attribute.
	if err := indexed.SetDataBuffer(schema.IndexFieldName, indexBuffer); err != nil {
		return nil, err
	}
	if err := indexed.SetDataBuffer(schema.LabelFieldName, labelBuffer); err != nil {
		return nil, err
	}
	indexed.SetFragmentName(fragmentName)

	return &dataQuery{indexed: indexed, labelled: labelled}, nil
}

// generateIndexData materializes the full domain sequence of a dimension.
func generateIndexData(dim schema.Dimension) []byte {
	n, err := dim.DomainSize()
	if err != nil {
		return nil
	}
	size := dim.Type.Size()
	lo := dim.Domain.Start(size)
	out := make([]byte, n*size)
	for i := uint64(0); i < n; i++ {
		dst := out[i*size:]
		switch dim.Type {
		case datatype.Uint8:
			bytesconv.Store(dst, bytesconv.Load[uint8](lo)+uint8(i))
		case datatype.Uint16:
			bytesconv.Store(dst, bytesconv.Load[uint16](lo)+uint16(i))
		case datatype.Uint32:
			bytesconv.Store(dst, bytesconv.Load[uint32](lo)+uint32(i))
		case datatype.Uint64:
			bytesconv.Store(dst, bytesconv.Load[uint64](lo)+i)
		case datatype.Int8:
			bytesconv.Store(dst, bytesconv.Load[int8](lo)+int8(i))
		case datatype.Int16:
			bytesconv.Store(dst, bytesconv.Load[int16](lo)+int16(i))
		case datatype.Int32:
			bytesconv.Store(dst, bytesconv.Load[int32](lo)+int32(i))
		default:
			bytesconv.Store(dst, bytesconv.Load[int64](lo)+int64(i))
		}
	}
	return out
}
