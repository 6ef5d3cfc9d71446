package dimlabel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/axisdb/axisdb/query"
	"github.com/axisdb/axisdb/ranges"
	"github.com/axisdb/axisdb/schema"
	"github.com/axisdb/axisdb/storage"
	"github.com/axisdb/axisdb/subarray"
)

// Queries is the per-parent-query aggregate: it owns every dimension label
// opened for the query, the range queries that resolve label ranges into
// index ranges, and the data queries that read or write label values.
type Queries struct {
	ctx   *storage.Context
	array *storage.Array

	dimensionLabels map[string]*DimensionLabel

	rangeQueries    []*LabelRangeQuery // indexed by parent dimension, nil gaps
	rangeQueriesMap map[string]*LabelRangeQuery

	dataQueries    []DataQuery
	dataQueriesMap map[string]DataQuery

	mu               sync.Mutex
	rangeQueryStatus query.Status
	fragmentName     string

	// Label buffers deferred until their label ranges resolve: reading
	// label values for a range-queried dimension needs the resolved index
	// ranges, so those data queries are created at the end of
	// ProcessRangeQueries.
	queryType       storage.QueryType
	deferredBuffers map[string]query.Buffer
}

// NewQueries builds the aggregate for one parent query: the range queries
// required by the subarray's label ranges and the data queries required by
// the label buffer map. Writes without an explicit fragment name generate
// one shared by every paired sibling write.
func NewQueries(c *storage.Context, array *storage.Array, sa *subarray.Subarray,
	labelBuffers map[string]query.Buffer, arrayBuffers map[string]query.Buffer,
	fragmentName string) (*Queries, error) {

	qt, err := array.QueryType()
	if err != nil {
		return nil, err
	}
	q := &Queries{
		ctx:              c,
		array:            array,
		dimensionLabels:  make(map[string]*DimensionLabel),
		rangeQueries:     make([]*LabelRangeQuery, sa.DimNum()),
		rangeQueriesMap:  make(map[string]*LabelRangeQuery),
		dataQueriesMap:   make(map[string]DataQuery),
		rangeQueryStatus: query.StatusUninitialized,
		fragmentName:     fragmentName,
		queryType:        qt,
		deferredBuffers:  make(map[string]query.Buffer),
	}

	switch qt {
	case storage.QueryTypeRead:
		if err := q.addRangeQueries(sa, arrayBuffers); err != nil {
			q.closeLabels()
			return nil, err
		}
		if err := q.addDataQueriesForRead(sa, labelBuffers); err != nil {
			q.closeLabels()
			return nil, err
		}

	case storage.QueryTypeWrite:
		if q.fragmentName == "" {
			q.fragmentName = storage.GenerateFragmentName(
				array.TimestampEnd(), schema.FormatVersion)
		}
		if err := q.addRangeQueries(sa, arrayBuffers); err != nil {
			q.closeLabels()
			return nil, err
		}
		if err := q.addDataQueriesForWrite(sa, labelBuffers, arrayBuffers); err != nil {
			q.closeLabels()
			return nil, err
		}

	case storage.QueryTypeDelete, storage.QueryTypeUpdate, storage.QueryTypeModifyExclusive:
		if len(labelBuffers) != 0 || sa.HasAnyLabelRanges() {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedForQueryType, qt)
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueryType, qt)
	}

	if len(q.rangeQueriesMap) == 0 {
		q.rangeQueryStatus = query.StatusCompleted
	} else {
		q.rangeQueryStatus = query.StatusInProgress
	}
	return q, nil
}

// sortedNames iterates a buffer map in a stable order.
func sortedNames(buffers map[string]query.Buffer) []string {
	names := make([]string, 0, len(buffers))
	for name := range buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// addRangeQueries builds one range query per dimension carrying label
// ranges.
func (q *Queries) addRangeQueries(sa *subarray.Subarray, arrayBuffers map[string]query.Buffer) error {
	parentSchema, err := q.array.Schema()
	if err != nil {
		return err
	}
	for d := 0; d < sa.DimNum(); d++ {
		if !sa.HasLabelRanges(d) {
			continue
		}
		name, err := sa.LabelName(d)
		if err != nil {
			return err
		}
		ref, err := parentSchema.LabelReference(name)
		if err != nil {
			return err
		}
		// Resolving ranges reads only the labelled array.
		dl, err := q.openDimensionLabel(parentSchema, ref, storage.QueryTypeRead, false, true)
		if err != nil {
			return err
		}

		switch ref.Order {
		case schema.IncreasingLabels, schema.DecreasingLabels:
			labelRanges, err := sa.LabelRangesForDim(d)
			if err != nil {
				return err
			}
			rq, err := NewLabelRangeQuery(q.ctx, dl, labelRanges, d)
			if err != nil {
				return err
			}
			q.rangeQueries[d] = rq
			q.rangeQueriesMap[name] = rq

		case schema.UnorderedLabels:
			dimName := parentSchema.Dimensions[ref.DimensionIndex].Name
			if _, ok := arrayBuffers[dimName]; !ok {
				return fmt.Errorf("%w: unordered label %q requires the %q dimension buffer",
					ErrMissingIndexBuffer, name, dimName)
			}
			return fmt.Errorf("%w: reading ranges from unordered labels is not implemented",
				ErrUnsupportedOrder)

		default:
			return fmt.Errorf("%w: label order %s", ErrUnsupportedOrder, ref.Order)
		}
	}
	return nil
}

// addDataQueriesForRead builds one ordered-read data query per label buffer
// whose label is not already owned by a range query.
func (q *Queries) addDataQueriesForRead(sa *subarray.Subarray, labelBuffers map[string]query.Buffer) error {
	parentSchema, err := q.array.Schema()
	if err != nil {
		return err
	}
	for _, name := range sortedNames(labelBuffers) {
		if _, ok := q.rangeQueriesMap[name]; ok {
			// The index ranges for this label are not known yet; the read
			// is created once its range query resolves.
			q.deferredBuffers[name] = labelBuffers[name]
			continue
		}
		ref, err := parentSchema.LabelReference(name)
		if err != nil {
			return err
		}
		// Reading label values touches only the indexed array.
		dl, err := q.openDimensionLabel(parentSchema, ref, storage.QueryTypeRead, true, false)
		if err != nil {
			return err
		}
		dq, err := NewOrderedReadQuery(q.ctx, dl, sa, labelBuffers[name], ref.DimensionIndex)
		if err != nil {
			return err
		}
		q.dataQueries = append(q.dataQueries, dq)
		q.dataQueriesMap[name] = dq
	}
	return nil
}

// addDataQueriesForWrite builds one write data query per label buffer,
// dispatching on the declared label order.
func (q *Queries) addDataQueriesForWrite(sa *subarray.Subarray,
	labelBuffers map[string]query.Buffer, arrayBuffers map[string]query.Buffer) error {

	parentSchema, err := q.array.Schema()
	if err != nil {
		return err
	}
	for _, name := range sortedNames(labelBuffers) {
		if _, ok := q.rangeQueriesMap[name]; ok {
			continue
		}
		ref, err := parentSchema.LabelReference(name)
		if err != nil {
			return err
		}
		dl, err := q.openDimensionLabel(parentSchema, ref, storage.QueryTypeWrite, true, true)
		if err != nil {
			return err
		}
		dimName := parentSchema.Dimensions[ref.DimensionIndex].Name
		indexBuffer := arrayBuffers[dimName]

		var dq DataQuery
		switch ref.Order {
		case schema.IncreasingLabels, schema.DecreasingLabels:
			dq, err = NewOrderedWriteQuery(q.ctx, dl, sa, labelBuffers[name], indexBuffer,
				ref.DimensionIndex, q.fragmentName)

		case schema.UnorderedLabels:
			dq, err = NewUnorderedWriteQuery(q.ctx, dl, labelBuffers[name], indexBuffer,
				q.fragmentName)

		default:
			err = fmt.Errorf("%w: cannot initialize label %q with order %s",
				ErrUnsupportedOrder, name, ref.Order)
		}
		if err != nil {
			return err
		}
		q.dataQueries = append(q.dataQueries, dq)
		q.dataQueriesMap[name] = dq
	}
	return nil
}

// openDimensionLabel opens the label declared by ref under the parent's
// timestamp window, validating the stored label against the declaration.
func (q *Queries) openDimensionLabel(parentSchema *schema.ArraySchema, ref schema.LabelReference,
	qt storage.QueryType, openIndexed, openLabelled bool) (*DimensionLabel, error) {

	if dl, ok := q.dimensionLabels[ref.Name]; ok {
		return dl, nil
	}
	parentDim, err := parentSchema.Dimension(ref.DimensionIndex)
	if err != nil {
		return nil, err
	}
	dl := NewDimensionLabel(q.ctx, q.array.URI(), ref, parentDim)
	if err := dl.Open(qt, q.array.TimestampStart(), q.array.TimestampEnd(),
		storage.NoEncryption, nil, openIndexed, openLabelled); err != nil {
		return nil, err
	}
	q.dimensionLabels[ref.Name] = dl
	return dl, nil
}

// FragmentName returns the shared fragment name of the aggregate's writes.
func (q *Queries) FragmentName() string { return q.fragmentName }

// NumRangeQueries returns the number of owned range queries.
func (q *Queries) NumRangeQueries() int { return len(q.rangeQueriesMap) }

// NumDataQueries returns the number of owned data queries.
func (q *Queries) NumDataQueries() int { return len(q.dataQueries) }

// HasLabelRanges reports whether dimension d has a range query.
func (q *Queries) HasLabelRanges(d int) bool {
	return d >= 0 && d < len(q.rangeQueries) && q.rangeQueries[d] != nil
}

// StatusRangeQuery returns the status of the range query on dimension d,
// or COMPLETED when the dimension has none.
func (q *Queries) StatusRangeQuery(d int) query.Status {
	if !q.HasLabelRanges(d) {
		return query.StatusCompleted
	}
	return q.rangeQueries[d].Status()
}

// IndexRanges returns the resolved index ranges of dimension d. Valid only
// after ProcessRangeQueries.
func (q *Queries) IndexRanges(d int) (isPointRanges bool, rs []ranges.Range) {
	if !q.HasLabelRanges(d) {
		return false, nil
	}
	return q.rangeQueries[d].IndexRanges()
}

// ProcessRangeQueries resolves every label range in parallel and installs
// the computed index ranges on the subarray. Installation is all-or-nothing:
// a failed range query leaves the subarray untouched.
func (q *Queries) ProcessRangeQueries(ctx context.Context, sa *subarray.Subarray) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.rangeQueriesMap) == 0 {
		q.rangeQueryStatus = query.StatusCompleted
		return nil
	}

	err := q.ctx.Pool().ParallelFor(ctx, len(q.rangeQueries), func(d int) error {
		if q.rangeQueries[d] == nil {
			return nil
		}
		return q.rangeQueries[d].Process(ctx)
	})
	if err != nil {
		q.rangeQueryStatus = query.StatusFailed
		return err
	}

	// Verify every query completed before mutating the subarray.
	for d, rq := range q.rangeQueries {
		if rq == nil {
			continue
		}
		if st := rq.Status(); st != query.StatusCompleted {
			q.rangeQueryStatus = query.StatusFailed
			return fmt.Errorf("%w: range query for dimension %d reports %s",
				ErrInternal, d, st)
		}
	}

	for d, rq := range q.rangeQueries {
		if rq == nil {
			continue
		}
		isPoint, rs := rq.IndexRanges()
		switch {
		case len(rs) == 0:
			// The label range selects nothing; leave the dimension
			// explicitly initialized with no selection.
			if err := sa.SetRangesForDim(d, nil); err != nil {
				q.rangeQueryStatus = query.StatusFailed
				return err
			}
		case isPoint:
			points, count, err := packPointRanges(rs)
			if err != nil {
				q.rangeQueryStatus = query.StatusFailed
				return err
			}
			if err := sa.AddPointRanges(d, points, count); err != nil {
				q.rangeQueryStatus = query.StatusFailed
				return err
			}
		default:
			for _, r := range rs {
				if err := sa.AddRange(d, r); err != nil {
					q.rangeQueryStatus = query.StatusFailed
					return err
				}
			}
		}
	}
	if err := q.addDeferredDataQueries(sa); err != nil {
		q.rangeQueryStatus = query.StatusFailed
		return err
	}
	q.rangeQueryStatus = query.StatusCompleted
	return nil
}

// addDeferredDataQueries creates the ordered-read queries for label buffers
// whose dimensions were addressed by label ranges, now that the resolved
// index ranges are installed on the subarray.
func (q *Queries) addDeferredDataQueries(sa *subarray.Subarray) error {
	if q.queryType != storage.QueryTypeRead || len(q.deferredBuffers) == 0 {
		return nil
	}
	parentSchema, err := q.array.Schema()
	if err != nil {
		return err
	}
	for _, name := range sortedNames(q.deferredBuffers) {
		ref, err := parentSchema.LabelReference(name)
		if err != nil {
			return err
		}
		dl, ok := q.dimensionLabels[name]
		if !ok {
			return fmt.Errorf("%w: label %q has a range query but was never opened",
				ErrInternal, name)
		}
		dq, err := NewOrderedReadQuery(q.ctx, dl, sa, q.deferredBuffers[name], ref.DimensionIndex)
		if err != nil {
			return err
		}
		q.dataQueries = append(q.dataQueries, dq)
		q.dataQueriesMap[name] = dq
	}
	q.deferredBuffers = make(map[string]query.Buffer)
	return nil
}

// packPointRanges flattens point ranges into the packed value array the
// bulk subarray call consumes.
func packPointRanges(rs []ranges.Range) ([]byte, int, error) {
	var out []byte
	for _, r := range rs {
		if r.IsEmpty() {
			return nil, 0, fmt.Errorf("%w: empty point range", ErrInternal)
		}
		out = append(out, r.Start(uint64(len(r)/2))...)
	}
	return out, len(rs), nil
}

// ProcessDataQueries runs every data query in parallel.
func (q *Queries) ProcessDataQueries(ctx context.Context) error {
	return q.ctx.Pool().ParallelFor(ctx, len(q.dataQueries), func(i int) error {
		return q.dataQueries[i].Process(ctx)
	})
}

// RangeQueryStatus returns the collective status of the range queries.
func (q *Queries) RangeQueryStatus() query.Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rangeQueryStatus
}

// Completed reports whether every range query and every data query finished
// successfully.
func (q *Queries) Completed() bool {
	q.mu.Lock()
	st := q.rangeQueryStatus
	q.mu.Unlock()
	if st != query.StatusCompleted {
		return false
	}
	for _, dq := range q.dataQueries {
		if !dq.Completed() {
			return false
		}
	}
	return true
}

// Cancel cascades to every owned query. Idempotent.
func (q *Queries) Cancel(ctx context.Context) error {
	err := q.ctx.Pool().ParallelFor(ctx, len(q.rangeQueries), func(d int) error {
		if q.rangeQueries[d] == nil {
			return nil
		}
		return q.rangeQueries[d].Cancel()
	})
	if err != nil {
		return err
	}
	return q.ctx.Pool().ParallelFor(ctx, len(q.dataQueries), func(i int) error {
		return q.dataQueries[i].Cancel()
	})
}

// Finalize cascades to every owned query.
func (q *Queries) Finalize(ctx context.Context) error {
	err := q.ctx.Pool().ParallelFor(ctx, len(q.rangeQueries), func(d int) error {
		if q.rangeQueries[d] == nil {
			return nil
		}
		return q.rangeQueries[d].Finalize()
	})
	if err != nil {
		return err
	}
	return q.ctx.Pool().ParallelFor(ctx, len(q.dataQueries), func(i int) error {
		return q.dataQueries[i].Finalize()
	})
}

// Close closes every opened dimension label.
func (q *Queries) Close() {
	q.closeLabels()
}

func (q *Queries) closeLabels() {
	for _, dl := range q.dimensionLabels {
		dl.Close()
	}
}
