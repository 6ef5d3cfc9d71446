package dimlabel

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/axisdb/axisdb/datatype"
	"github.com/axisdb/axisdb/query"
	"github.com/axisdb/axisdb/ranges"
	"github.com/axisdb/axisdb/schema"
	"github.com/axisdb/axisdb/storage"
)

// RangeQuery translates one label range [ls, le] into the index range that
// selects exactly the cells whose labels fall inside it. It issues two
// bounded probes against the sorted labelled array, one from ls and one
// from le, and corrects the overshoot left when a probe lands on the first
// label strictly greater than its bound.
type RangeQuery struct {
	order     schema.LabelOrder
	labelType datatype.Datatype
	indexType datatype.Datatype

	inputLabelRange    ranges.Range
	computedLabelRange ranges.Range
	computedIndexRange ranges.Range
	empty              bool

	lower *query.Query
	upper *query.Query

	lowerLabelSize, upperLabelSize uint64
	lowerIndexSize, upperIndexSize uint64

	mu     sync.Mutex
	status query.Status
}

func newRangeQuery(c *storage.Context, dl *DimensionLabel, labelRange ranges.Range) (*RangeQuery, error) {
	order := dl.Order()
	if order != schema.IncreasingLabels && order != schema.DecreasingLabels {
		return nil, fmt.Errorf("%w: range queries require increasing or decreasing labels, got %s",
			ErrUnsupportedOrder, order)
	}
	labelType := dl.Ref().LabelType
	indexType := dl.ParentDim().Type
	if !indexType.IsInteger() {
		return nil, fmt.Errorf("%w: index datatype %s has no range correction",
			ErrUnsupportedDatatype, indexType)
	}
	if !labelType.IsValid() {
		return nil, fmt.Errorf("%w: label datatype %s", ErrUnsupportedDatatype, labelType)
	}

	rq := &RangeQuery{
		order:              order,
		labelType:          labelType,
		indexType:          indexType,
		inputLabelRange:    labelRange.Clone(),
		computedLabelRange: labelRange.Clone(),
		computedIndexRange: dl.ParentDim().Domain.Clone(),
		lowerLabelSize:     labelType.Size(),
		upperLabelSize:     labelType.Size(),
		lowerIndexSize:     indexType.Size(),
		upperIndexSize:     indexType.Size(),
		status:             query.StatusUninitialized,
	}

	labelDomain := dl.Ref().LabelDomain
	lsize := labelType.Size()

	var err error
	if rq.lower, err = query.New(c, dl.LabelledArray()); err != nil {
		return nil, err
	}
	if rq.upper, err = query.New(c, dl.LabelledArray()); err != nil {
		return nil, err
	}

	// Each probe scans from its bound to the end of the label domain and
	// keeps only the first cell.
	if err := rq.lower.AddRange(0, ranges.FromBytes(
		labelRange.Start(lsize), labelDomain.End(lsize))); err != nil {
		return nil, err
	}
	if err := rq.upper.AddRange(0, ranges.FromBytes(
		labelRange.End(lsize), labelDomain.End(lsize))); err != nil {
		return nil, err
	}

	// The matched labels land in the computed label range.
	if err := rq.lower.SetDataBuffer(schema.LabelFieldName, query.Buffer{
		Data: rq.computedLabelRange.Start(lsize), Size: &rq.lowerLabelSize,
	}); err != nil {
		return nil, err
	}
	if err := rq.upper.SetDataBuffer(schema.LabelFieldName, query.Buffer{
		Data: rq.computedLabelRange.End(lsize), Size: &rq.upperLabelSize,
	}); err != nil {
		return nil, err
	}

	// The matched indices land in the computed index range. For decreasing
	// labels the probe from ls yields the range's upper index and the probe
	// from le its lower index, so the buffer roles swap.
	isize := indexType.Size()
	switch order {
	case schema.IncreasingLabels:
		if err := rq.lower.SetDataBuffer(schema.IndexFieldName, query.Buffer{
			Data: rq.computedIndexRange.Start(isize), Size: &rq.lowerIndexSize,
		}); err != nil {
			return nil, err
		}
		if err := rq.upper.SetDataBuffer(schema.IndexFieldName, query.Buffer{
			Data: rq.computedIndexRange.End(isize), Size: &rq.upperIndexSize,
		}); err != nil {
			return nil, err
		}
	case schema.DecreasingLabels:
		if err := rq.upper.SetDataBuffer(schema.IndexFieldName, query.Buffer{
			Data: rq.computedIndexRange.Start(isize), Size: &rq.upperIndexSize,
		}); err != nil {
			return nil, err
		}
		if err := rq.lower.SetDataBuffer(schema.IndexFieldName, query.Buffer{
			Data: rq.computedIndexRange.End(isize), Size: &rq.lowerIndexSize,
		}); err != nil {
			return nil, err
		}
	}
	return rq, nil
}

// Process runs both probes to completion and applies the overshoot
// correction. The corrected index range is observable only after both
// probes have finished.
func (rq *RangeQuery) Process(ctx context.Context) error {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	if rq.status == query.StatusCompleted {
		return nil
	}
	if rq.status == query.StatusFailed {
		return ErrCancelledRangeQuery
	}
	rq.status = query.StatusInProgress

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rq.lower.Submit(gctx) })
	g.Go(func() error { return rq.upper.Submit(gctx) })
	if err := g.Wait(); err != nil {
		rq.lower.Cancel()
		rq.upper.Cancel()
		rq.status = query.StatusFailed
		return err
	}

	if !rq.lower.HasResults() || !rq.upper.HasResults() {
		rq.status = query.StatusFailed
		rq.lower.Finalize()
		rq.upper.Finalize()
		return ErrLabelRangeNotFound
	}

	// A probe that landed past its bound matched the first label strictly
	// greater than it; step the corresponding index back inside the range.
	// When both probes matched the same cell the requested range holds no
	// labels at all.
	if ranges.UpperBoundGT(rq.labelType, rq.computedLabelRange, rq.inputLabelRange) {
		isize := rq.indexType.Size()
		start := rq.computedIndexRange.Start(isize)
		end := rq.computedIndexRange.End(isize)
		if ranges.CompareValues(rq.indexType, start, end) == 0 {
			rq.empty = true
		} else if rq.order == schema.IncreasingLabels {
			if err := ranges.DecreaseUpperBound(rq.indexType, rq.computedIndexRange); err != nil {
				rq.status = query.StatusFailed
				return err
			}
		} else {
			if err := ranges.IncreaseLowerBound(rq.indexType, rq.computedIndexRange); err != nil {
				rq.status = query.StatusFailed
				return err
			}
		}
	}

	rq.status = query.StatusCompleted
	if err := rq.lower.Finalize(); err != nil {
		return err
	}
	return rq.upper.Finalize()
}

// ErrCancelledRangeQuery is returned when a cancelled range query is
// processed.
var ErrCancelledRangeQuery = fmt.Errorf("range query was cancelled: %w", query.ErrCancelled)

// Cancel moves unfinished probes and an unfinished query to FAILED; a
// cancelled query reports an empty index range. A query that already
// completed keeps its status and range. Idempotent.
func (rq *RangeQuery) Cancel() error {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	if err := rq.lower.Cancel(); err != nil {
		return err
	}
	if err := rq.upper.Cancel(); err != nil {
		return err
	}
	if rq.status != query.StatusCompleted {
		rq.status = query.StatusFailed
		rq.empty = true
	}
	return nil
}

// Finalize finalizes both probes.
func (rq *RangeQuery) Finalize() error {
	if err := rq.lower.Finalize(); err != nil {
		return err
	}
	return rq.upper.Finalize()
}

// Status returns the query status.
func (rq *RangeQuery) Status() query.Status {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.status
}

// IndexRange returns the computed index range. It is empty until Process
// completes, and stays empty when the label range selects no cells.
func (rq *RangeQuery) IndexRange() ranges.Range {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	if rq.status != query.StatusCompleted || rq.empty {
		return nil
	}
	return rq.computedIndexRange.Clone()
}

// LabelRangeQuery resolves the label ranges set on one dimension of the
// parent subarray. The current engine accepts exactly one label range per
// dimension; the computed index ranges are exposed for bulk insertion into
// the parent subarray.
type LabelRangeQuery struct {
	labelName string
	dimIdx    int
	inner     *RangeQuery
}

// NewLabelRangeQuery wraps a range query over the label ranges on parent
// dimension dimIdx.
func NewLabelRangeQuery(c *storage.Context, dl *DimensionLabel, labelRanges *ranges.SetAndSuperset, dimIdx int) (*LabelRangeQuery, error) {
	if labelRanges == nil || labelRanges.NumRanges() == 0 {
		return nil, fmt.Errorf("%w: no label range to resolve", ErrInvalidArgument)
	}
	if labelRanges.NumRanges() > 1 {
		return nil, fmt.Errorf("%w: setting more than one label range is currently unsupported",
			ErrInvalidArgument)
	}
	inner, err := newRangeQuery(c, dl, labelRanges.Ranges()[0])
	if err != nil {
		return nil, err
	}
	return &LabelRangeQuery{labelName: dl.Ref().Name, dimIdx: dimIdx, inner: inner}, nil
}

// LabelName returns the name of the label the query resolves.
func (q *LabelRangeQuery) LabelName() string { return q.labelName }

// DimIndex returns the parent dimension the query resolves ranges for.
func (q *LabelRangeQuery) DimIndex() int { return q.dimIdx }

// Process runs the wrapped probes to completion.
func (q *LabelRangeQuery) Process(ctx context.Context) error { return q.inner.Process(ctx) }

// Status propagates the wrapped status.
func (q *LabelRangeQuery) Status() query.Status { return q.inner.Status() }

// Cancel cancels the wrapped probes.
func (q *LabelRangeQuery) Cancel() error { return q.inner.Cancel() }

// Finalize finalizes the wrapped probes.
func (q *LabelRangeQuery) Finalize() error { return q.inner.Finalize() }

// IndexRanges describes the resolved index ranges for installation on the
// parent subarray: whether they are point ranges, and the list itself. The
// list holds zero ranges when the label range selects nothing and one
// otherwise; the ranges are general intervals, not points.
func (q *LabelRangeQuery) IndexRanges() (isPointRanges bool, rs []ranges.Range) {
	r := q.inner.IndexRange()
	if r.IsEmpty() {
		return false, nil
	}
	return false, []ranges.Range{r}
}
