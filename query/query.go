package query

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/axisdb/axisdb/ranges"
	"github.com/axisdb/axisdb/schema"
	"github.com/axisdb/axisdb/storage"
	"github.com/axisdb/axisdb/subarray"
)

var (
	// ErrInvalidBuffer is returned for malformed or mismatched buffers.
	ErrInvalidBuffer = errors.New("invalid query buffer")

	// ErrVarLengthUnsupported is returned when offsets buffers are bound or
	// a var-sized field is queried.
	ErrVarLengthUnsupported = errors.New("variable-length fields are not supported")

	// ErrBadLayout is returned when the layout does not fit the array type
	// and query type.
	ErrBadLayout = errors.New("layout not supported for this query")

	// ErrCancelled is returned when a cancelled query is submitted.
	ErrCancelled = errors.New("query was cancelled")

	// ErrNotFullDomain is returned when a dense write does not cover the
	// full array domain.
	ErrNotFullDomain = errors.New("dense writes must cover the full domain")
)

// Query runs one read or write against one open array.
type Query struct {
	ctx    *storage.Context
	array  *storage.Array
	schema *schema.ArraySchema
	qt     storage.QueryType

	mu           sync.Mutex
	layout       Layout
	sa           *subarray.Subarray
	buffers      map[string]Buffer
	fragmentName string
	status       Status
	hasResults   bool
	cursor       uint64
	cancelled    bool
}

// New creates a query against an open array.
func New(c *storage.Context, a *storage.Array) (*Query, error) {
	s, err := a.Schema()
	if err != nil {
		return nil, err
	}
	qt, err := a.QueryType()
	if err != nil {
		return nil, err
	}
	return &Query{
		ctx:     c,
		array:   a,
		schema:  s,
		qt:      qt,
		layout:  LayoutRowMajor,
		buffers: make(map[string]Buffer),
		status:  StatusUninitialized,
	}, nil
}

// Array returns the underlying array.
func (q *Query) Array() *storage.Array { return q.array }

// SetLayout sets the cell order of the query.
func (q *Query) SetLayout(l Layout) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status != StatusUninitialized {
		return fmt.Errorf("cannot set layout on a %s query", q.status)
	}
	q.layout = l
	return nil
}

// SetSubarray attaches the subarray the query ranges over. The subarray is
// shared, not copied; resolved label ranges installed on it before submit
// are visible to the query.
func (q *Query) SetSubarray(sa *subarray.Subarray) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status.IsTerminal() {
		return fmt.Errorf("cannot set subarray on a %s query", q.status)
	}
	q.sa = sa
	return nil
}

// AddRange adds one range on dimension d. Stride is not supported anywhere
// in the engine, so there is no stride parameter to reject.
func (q *Query) AddRange(d int, r ranges.Range) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sa == nil {
		q.sa = subarray.New(q.schema)
	}
	return q.sa.AddRange(d, r)
}

// SetDataBuffer binds the data buffer of one field.
func (q *Query) SetDataBuffer(name string, b Buffer) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status.IsTerminal() {
		return fmt.Errorf("cannot bind buffer on a %s query", q.status)
	}
	if !b.IsSet() {
		return fmt.Errorf("%w: field %q has no storage", ErrInvalidBuffer, name)
	}
	if len(b.Offsets) != 0 || b.OffsetsSize != nil {
		return fmt.Errorf("%w: field %q", ErrVarLengthUnsupported, name)
	}
	dt, err := q.schema.FieldType(name)
	if err != nil {
		return err
	}
	if b.capacity()%dt.Size() != 0 {
		return fmt.Errorf("%w: field %q size %d is not a multiple of the cell size %d",
			ErrInvalidBuffer, name, b.capacity(), dt.Size())
	}
	q.buffers[name] = b
	return nil
}

// SetFragmentName fixes the fragment name a write publishes under. Paired
// sibling writes pass the same name so their fragments share a timestamp.
func (q *Query) SetFragmentName(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fragmentName = name
}

// Status returns the query status.
func (q *Query) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// HasResults reports whether a read produced at least one cell.
func (q *Query) HasResults() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasResults
}

// Cancel moves any non-terminal query to FAILED. Idempotent; cancelling a
// finished query leaves it finished.
func (q *Query) Cancel() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status.IsTerminal() {
		return nil
	}
	q.cancelled = true
	q.status = StatusFailed
	return nil
}

// Finalize flushes any remaining write state. Reads and one-shot writes
// have nothing to flush.
func (q *Query) Finalize() error {
	return nil
}

// Submit runs the query. Reads left INCOMPLETE by exhausted buffers resume
// from their cursor when submitted again.
func (q *Query) Submit(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancelled {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		q.status = StatusFailed
		return err
	}
	if q.status == StatusCompleted {
		return nil
	}
	if len(q.buffers) == 0 {
		q.status = StatusFailed
		return fmt.Errorf("%w: no buffers bound", ErrInvalidBuffer)
	}
	q.status = StatusInProgress
	q.ctx.Stats().QueriesProcessed.Add(1)

	var err error
	switch q.qt {
	case storage.QueryTypeRead:
		if q.schema.Dense() {
			err = q.denseRead()
		} else {
			err = q.sparseRead()
		}
	case storage.QueryTypeWrite, storage.QueryTypeModifyExclusive:
		if q.schema.Dense() {
			err = q.denseWrite()
		} else {
			err = q.sparseWrite()
		}
	default:
		err = fmt.Errorf("query type %s is not executable", q.qt)
	}
	if err != nil {
		q.status = StatusFailed
		q.ctx.Logger().Error("query failed",
			"uri", q.array.URI(), "query_type", q.qt.String(), "error", err)
		return err
	}
	return nil
}
