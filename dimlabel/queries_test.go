package dimlabel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axisdb/axisdb/datatype"
	"github.com/axisdb/axisdb/query"
	"github.com/axisdb/axisdb/ranges"
	"github.com/axisdb/axisdb/schema"
	"github.com/axisdb/axisdb/storage"
	"github.com/axisdb/axisdb/subarray"
)

func openParent(t *testing.T, f *labelFixture, qt storage.QueryType) *storage.Array {
	t.Helper()
	a := storage.NewArray(f.ctx, f.parentURI)
	require.NoError(t, a.Open(qt, 0, 1000, storage.NoEncryption, nil))
	t.Cleanup(a.Close)
	return a
}

func parentSubarray(t *testing.T, a *storage.Array) *subarray.Subarray {
	t.Helper()
	s, err := a.Schema()
	require.NoError(t, err)
	return subarray.New(s)
}

func TestQueriesResolveAndInstallRanges(t *testing.T) {
	ctx := context.Background()
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})

	parent := openParent(t, f, storage.QueryTypeRead)
	sa := parentSubarray(t, parent)
	require.NoError(t, sa.AddLabelRange(0, "height", ranges.Make[uint64](20, 30)))

	q, err := NewQueries(c, parent, sa, nil, nil, "")
	require.NoError(t, err)
	defer q.Close()
	assert.True(t, q.HasLabelRanges(0))
	assert.Equal(t, query.StatusInProgress, q.RangeQueryStatus())

	// The subarray barrier: before range queries run, the index side is
	// still default; afterwards it carries the resolved range.
	assert.True(t, sa.IsDefault(0))
	require.NoError(t, q.ProcessRangeQueries(ctx, sa))
	assert.Equal(t, query.StatusCompleted, q.StatusRangeQuery(0))
	assert.True(t, q.Completed())

	rs, err := sa.RangesForDim(0)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	lo, hi := ranges.Values[uint64](rs[0])
	assert.Equal(t, uint64(2), lo)
	assert.Equal(t, uint64(3), hi)

	isPoint, got := q.IndexRanges(0)
	assert.False(t, isPoint)
	require.Len(t, got, 1)
}

func TestQueriesEmptyResolutionInstallsEmptySelection(t *testing.T) {
	ctx := context.Background()
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})

	parent := openParent(t, f, storage.QueryTypeRead)
	sa := parentSubarray(t, parent)
	require.NoError(t, sa.AddLabelRange(0, "height", ranges.Make[uint64](12, 18)))

	q, err := NewQueries(c, parent, sa, nil, nil, "")
	require.NoError(t, err)
	defer q.Close()
	require.NoError(t, q.ProcessRangeQueries(ctx, sa))
	assert.True(t, sa.IsEmpty(0))
}

func TestQueriesRangeAndLabelBuffer(t *testing.T) {
	// A label buffer on a range-queried dimension is served by a read
	// created after the ranges resolve.
	ctx := context.Background()
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})

	parent := openParent(t, f, storage.QueryTypeRead)
	sa := parentSubarray(t, parent)
	require.NoError(t, sa.AddLabelRange(0, "height", ranges.Make[uint64](20, 30)))

	out := make([]uint64, 2)
	labelBuffers := map[string]query.Buffer{"height": query.BufferOf(out)}
	q, err := NewQueries(c, parent, sa, labelBuffers, nil, "")
	require.NoError(t, err)
	defer q.Close()
	assert.Equal(t, 0, q.NumDataQueries())

	require.NoError(t, q.ProcessRangeQueries(ctx, sa))
	assert.Equal(t, 1, q.NumDataQueries())
	require.NoError(t, q.ProcessDataQueries(ctx))
	assert.True(t, q.Completed())
	assert.Equal(t, []uint64{20, 30}, out)
}

func TestQueriesWriteBuildsPairedFragments(t *testing.T) {
	ctx := context.Background()
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, nil)

	parent := openParent(t, f, storage.QueryTypeWrite)
	sa := parentSubarray(t, parent)
	labels := []uint64{10, 20, 30, 40}
	labelBuffers := map[string]query.Buffer{"height": query.BufferOf(labels)}

	q, err := NewQueries(c, parent, sa, labelBuffers, nil, "")
	require.NoError(t, err)
	defer q.Close()
	assert.NotEmpty(t, q.FragmentName())
	require.NoError(t, q.ProcessRangeQueries(ctx, sa))
	require.NoError(t, q.ProcessDataQueries(ctx))
	assert.True(t, q.Completed())

	// Paired fragments share the generated name.
	dl := f.openLabel(t, storage.QueryTypeRead)
	defer dl.Close()
	indexedFrags, err := dl.IndexedArray().Fragments()
	require.NoError(t, err)
	labelledFrags, err := dl.LabelledArray().Fragments()
	require.NoError(t, err)
	require.Len(t, indexedFrags, 1)
	require.Len(t, labelledFrags, 1)
	assert.Equal(t, q.FragmentName(), indexedFrags[0].Name)
	assert.Equal(t, q.FragmentName(), labelledFrags[0].Name)
}

func TestQueriesLabelsRejectedForDelete(t *testing.T) {
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})

	parent := openParent(t, f, storage.QueryTypeDelete)
	sa := parentSubarray(t, parent)
	require.NoError(t, sa.AddLabelRange(0, "height", ranges.Make[uint64](20, 30)))
	_, err := NewQueries(c, parent, sa, nil, nil, "")
	require.ErrorIs(t, err, ErrUnsupportedForQueryType)

	// Without labels the query type is accepted and trivially complete.
	sa2 := parentSubarray(t, parent)
	q, err := NewQueries(c, parent, sa2, nil, nil, "")
	require.NoError(t, err)
	defer q.Close()
	assert.Equal(t, query.StatusCompleted, q.RangeQueryStatus())
	assert.True(t, q.Completed())
}

func TestQueriesUnknownLabelName(t *testing.T) {
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})
	parent := openParent(t, f, storage.QueryTypeRead)
	sa := parentSubarray(t, parent)

	out := make([]uint64, 4)
	_, err := NewQueries(c, parent, sa,
		map[string]query.Buffer{"missing": query.BufferOf(out)}, nil, "")
	require.ErrorIs(t, err, schema.ErrUnknownField)
}

func TestQueriesUnorderedReadUnimplemented(t *testing.T) {
	c := testContext(t)
	parentDim := schema.NewDimension("x", datatype.Uint64, ranges.Make[uint64](1, 4))
	ref := schema.NewLabelReference("tag", 0, schema.UnorderedLabels,
		datatype.Uint64, ranges.Make[uint64](0, 400))
	s, err := schema.New(schema.Dense,
		[]schema.Dimension{parentDim}, nil, []schema.LabelReference{ref})
	require.NoError(t, err)
	uri := t.TempDir() + "/parent"
	require.NoError(t, storage.Create(c, uri, s))

	// Write unordered label data first so the read has something to miss.
	dl := NewDimensionLabel(c, uri, ref, parentDim)
	require.NoError(t, dl.Open(storage.QueryTypeWrite, 0, 1000, storage.NoEncryption, nil, true, true))
	dq, err := NewUnorderedWriteQuery(c, dl,
		query.BufferOf([]uint64{10, 20, 30, 40}),
		query.BufferOf([]uint64{1, 2, 3, 4}),
		storage.GenerateFragmentName(1000, schema.FormatVersion))
	require.NoError(t, err)
	require.NoError(t, dq.Process(context.Background()))
	dl.Close()

	parent := storage.NewArray(c, uri)
	require.NoError(t, parent.Open(storage.QueryTypeRead, 0, 1000, storage.NoEncryption, nil))
	defer parent.Close()
	ps, err := parent.Schema()
	require.NoError(t, err)

	t.Run("missing index buffer", func(t *testing.T) {
		sa := subarray.New(ps)
		require.NoError(t, sa.AddLabelRange(0, "tag", ranges.Make[uint64](10, 20)))
		_, err := NewQueries(c, parent, sa, nil, nil, "")
		require.ErrorIs(t, err, ErrMissingIndexBuffer)
	})

	t.Run("unimplemented with index buffer", func(t *testing.T) {
		sa := subarray.New(ps)
		require.NoError(t, sa.AddLabelRange(0, "tag", ranges.Make[uint64](10, 20)))
		idx := make([]uint64, 4)
		_, err := NewQueries(c, parent, sa, nil,
			map[string]query.Buffer{"x": query.BufferOf(idx)}, "")
		require.ErrorIs(t, err, ErrUnsupportedOrder)
	})
}

func TestQueriesSchemaMismatch(t *testing.T) {
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})

	// Declare the label with a different order than the stored one.
	badRef := f.ref
	badRef.Order = schema.DecreasingLabels
	dl := NewDimensionLabel(c, f.parentURI, badRef, f.parentDim)
	err := dl.Open(storage.QueryTypeRead, 0, 1000, storage.NoEncryption, nil, true, true)
	require.ErrorIs(t, err, ErrLabelSchemaMismatch)

	badRef = f.ref
	badRef.LabelType = datatype.Int16
	dl = NewDimensionLabel(c, f.parentURI, badRef, f.parentDim)
	err = dl.Open(storage.QueryTypeRead, 0, 1000, storage.NoEncryption, nil, true, true)
	require.ErrorIs(t, err, ErrLabelSchemaMismatch)
}

func TestQueriesCancelIdempotent(t *testing.T) {
	ctx := context.Background()
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})

	parent := openParent(t, f, storage.QueryTypeRead)
	sa := parentSubarray(t, parent)
	require.NoError(t, sa.AddLabelRange(0, "height", ranges.Make[uint64](20, 30)))
	q, err := NewQueries(c, parent, sa, nil, nil, "")
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Cancel(ctx))
	require.NoError(t, q.Cancel(ctx))
	assert.Equal(t, query.StatusFailed, q.StatusRangeQuery(0))

	// A cancelled range query must not install anything on the subarray.
	err = q.ProcessRangeQueries(ctx, sa)
	require.Error(t, err)
	assert.True(t, sa.IsDefault(0))
}

func TestQueriesSubarrayBarrier(t *testing.T) {
	// Before data queries run, every dimension with label ranges reports a
	// completed range query.
	ctx := context.Background()
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})

	parent := openParent(t, f, storage.QueryTypeRead)
	sa := parentSubarray(t, parent)
	require.NoError(t, sa.AddLabelRange(0, "height", ranges.Make[uint64](20, 30)))
	out := make([]uint64, 2)
	q, err := NewQueries(c, parent, sa,
		map[string]query.Buffer{"height": query.BufferOf(out)}, nil, "")
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.ProcessRangeQueries(ctx, sa))
	for d := 0; d < sa.DimNum(); d++ {
		if q.HasLabelRanges(d) {
			assert.Equal(t, query.StatusCompleted, q.StatusRangeQuery(d))
		}
	}
	require.NoError(t, q.ProcessDataQueries(ctx))
	assert.True(t, q.Completed())
}
