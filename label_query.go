package axisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/axisdb/axisdb/dimlabel"
	"github.com/axisdb/axisdb/query"
	"github.com/axisdb/axisdb/ranges"
	"github.com/axisdb/axisdb/storage"
	"github.com/axisdb/axisdb/subarray"
)

// Query is a parent-array query. It routes buffer bindings to the parent
// array or to its dimension labels, resolves label ranges into index ranges
// before execution, and coordinates the label data queries with the parent
// read or write.
type Query struct {
	engine *Engine
	array  *Array
	qt     storage.QueryType

	sa           *subarray.Subarray
	labelBuffers map[string]query.Buffer
	arrayBuffers map[string]query.Buffer
	fragmentName string

	labelQueries *dimlabel.Queries
	parent       *query.Query
	cancelled    bool
}

// NewQuery creates a query against the open array.
func (a *Array) NewQuery() (*Query, error) {
	s, err := a.inner.Schema()
	if err != nil {
		return nil, err
	}
	qt, err := a.inner.QueryType()
	if err != nil {
		return nil, err
	}
	return &Query{
		engine:       a.engine,
		array:        a,
		qt:           qt,
		sa:           subarray.New(s),
		labelBuffers: make(map[string]query.Buffer),
		arrayBuffers: make(map[string]query.Buffer),
	}, nil
}

// Subarray returns the query's subarray. Resolved index ranges are
// installed on it before the parent query executes.
func (q *Query) Subarray() *subarray.Subarray { return q.sa }

// AddRange adds an index range on dimension d.
func (q *Query) AddRange(d int, r ranges.Range) error {
	return translateError(q.sa.AddRange(d, r))
}

// AddLabelRange adds a range on dimension d interpreted in the named
// label's value domain. The first label range fixes the label name on the
// dimension.
func (q *Query) AddLabelRange(d int, name string, r ranges.Range) error {
	return translateError(q.sa.AddLabelRange(d, name, r))
}

// SetDataBuffer binds a buffer to a dimension, attribute, or dimension
// label of the parent array.
func (q *Query) SetDataBuffer(name string, b query.Buffer) error {
	s, err := q.array.Schema()
	if err != nil {
		return err
	}
	if _, err := s.LabelReference(name); err == nil {
		q.labelBuffers[name] = b
		return nil
	}
	if _, err := s.FieldType(name); err != nil {
		return translateError(err)
	}
	q.arrayBuffers[name] = b
	return nil
}

// SetFragmentName fixes the fragment name the query's writes publish under.
func (q *Query) SetFragmentName(name string) { q.fragmentName = name }

// LabelQueries returns the dimension-label aggregate, available after the
// first Submit.
func (q *Query) LabelQueries() *dimlabel.Queries { return q.labelQueries }

// HasLabelRanges reports whether dimension d is addressed by label.
func (q *Query) HasLabelRanges(d int) bool {
	if q.labelQueries != nil {
		return q.labelQueries.HasLabelRanges(d)
	}
	return q.sa.HasLabelRanges(d)
}

// IndexRanges returns the index ranges dimension d resolved to. Valid only
// after Submit has run the range queries.
func (q *Query) IndexRanges(d int) (isPointRanges bool, rs []ranges.Range) {
	if q.labelQueries == nil {
		return false, nil
	}
	return q.labelQueries.IndexRanges(d)
}

// StatusRangeQuery returns the status of dimension d's range query.
func (q *Query) StatusRangeQuery(d int) query.Status {
	if q.labelQueries == nil {
		return query.StatusUninitialized
	}
	return q.labelQueries.StatusRangeQuery(d)
}

// Submit runs the query: label ranges resolve to index ranges and install
// on the subarray, label data queries run, then the parent array query.
func (q *Query) Submit(ctx context.Context) error {
	start := time.Now()
	err := q.submit(ctx)
	q.engine.metrics.RecordSubmit(time.Since(start), err)
	q.engine.logger.LogSubmit(ctx, q.array.URI(), err)
	return translateError(err)
}

func (q *Query) submit(ctx context.Context) error {
	if q.cancelled {
		return query.ErrCancelled
	}
	if q.labelQueries == nil {
		lq, err := dimlabel.NewQueries(q.engine.ctx, q.array.inner, q.sa,
			q.labelBuffers, q.arrayBuffers, q.fragmentName)
		if err != nil {
			return err
		}
		q.labelQueries = lq
	}

	// Every index range must be installed before any data query or the
	// parent query runs.
	rangeStart := time.Now()
	err := q.labelQueries.ProcessRangeQueries(ctx, q.sa)
	q.engine.metrics.RecordRangeQueries(
		q.labelQueries.NumRangeQueries(), time.Since(rangeStart), err)
	q.engine.logger.LogRangeQueries(ctx, q.labelQueries.NumRangeQueries(), err)
	if err != nil {
		return err
	}

	dataStart := time.Now()
	err = q.labelQueries.ProcessDataQueries(ctx)
	q.engine.metrics.RecordDataQueries(
		q.labelQueries.NumDataQueries(), time.Since(dataStart), err)
	q.engine.logger.LogDataQueries(ctx, q.labelQueries.NumDataQueries(), err)
	if err != nil {
		return err
	}

	return q.submitParent(ctx)
}

// submitParent runs the query against the parent array itself, when any of
// its own fields are bound.
func (q *Query) submitParent(ctx context.Context) error {
	s, err := q.array.Schema()
	if err != nil {
		return err
	}
	// A dense write consumes attribute buffers only; dimension buffers in
	// the map serve the label writes.
	bind := make(map[string]query.Buffer)
	for name, b := range q.arrayBuffers {
		if q.qt == storage.QueryTypeWrite && s.Dense() && s.IsDimension(name) {
			continue
		}
		bind[name] = b
	}
	if len(bind) == 0 {
		return nil
	}

	if q.parent == nil {
		parent, err := query.New(q.engine.ctx, q.array.inner)
		if err != nil {
			return err
		}
		layout := query.LayoutRowMajor
		if !s.Dense() && q.qt == storage.QueryTypeWrite {
			layout = query.LayoutUnordered
		}
		if err := parent.SetLayout(layout); err != nil {
			return err
		}
		if err := parent.SetSubarray(q.sa); err != nil {
			return err
		}
		for name, b := range bind {
			if err := parent.SetDataBuffer(name, b); err != nil {
				return err
			}
		}
		if q.fragmentName != "" {
			parent.SetFragmentName(q.fragmentName)
		} else if q.labelQueries != nil {
			parent.SetFragmentName(q.labelQueries.FragmentName())
		}
		q.parent = parent
	}
	return q.parent.Submit(ctx)
}

// Status returns the composed status of the query.
func (q *Query) Status() query.Status {
	if q.cancelled {
		return query.StatusFailed
	}
	if q.labelQueries == nil {
		return query.StatusUninitialized
	}
	if q.parent != nil {
		return q.parent.Status()
	}
	if q.labelQueries.Completed() {
		return query.StatusCompleted
	}
	return query.StatusInProgress
}

// Completed reports whether every owned query finished successfully.
func (q *Query) Completed() bool {
	if q.labelQueries == nil || !q.labelQueries.Completed() {
		return false
	}
	if q.parent != nil {
		return q.parent.Status() == query.StatusCompleted
	}
	return true
}

// Cancel cancels the query and cascades to every owned child. Idempotent.
func (q *Query) Cancel(ctx context.Context) error {
	q.cancelled = true
	if q.labelQueries != nil {
		if err := q.labelQueries.Cancel(ctx); err != nil {
			return translateError(err)
		}
	}
	if q.parent != nil {
		return translateError(q.parent.Cancel())
	}
	return nil
}

// Finalize flushes every owned query.
func (q *Query) Finalize(ctx context.Context) error {
	if q.labelQueries != nil {
		if err := q.labelQueries.Finalize(ctx); err != nil {
			return translateError(err)
		}
	}
	if q.parent != nil {
		return translateError(q.parent.Finalize())
	}
	return nil
}

// Close releases the dimension labels opened by the query.
func (q *Query) Close() {
	if q.labelQueries != nil {
		q.labelQueries.Close()
	}
}

// String describes the query for diagnostics.
func (q *Query) String() string {
	return fmt.Sprintf("query(%s, %s)", q.array.URI(), q.qt)
}
