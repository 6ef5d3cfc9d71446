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

func TestOrderedWriteOnce(t *testing.T) {
	// An ordered label is write-once: the first write of the odd labels
	// -15, -13, ..., 15 over index [1, 16] succeeds, the second fails.
	c := testContext(t)
	parentDim := schema.NewDimension("x", datatype.Uint64, ranges.Make[uint64](1, 16))
	ref := schema.NewLabelReference("offset", 0, schema.IncreasingLabels,
		datatype.Int64, ranges.Make[int64](-16, 16))
	s, err := schema.New(schema.Dense,
		[]schema.Dimension{parentDim}, nil, []schema.LabelReference{ref})
	require.NoError(t, err)
	uri := t.TempDir() + "/parent"
	require.NoError(t, storage.Create(c, uri, s))

	labels := make([]int64, 16)
	for i := range labels {
		labels[i] = int64(2*i - 15)
	}

	write := func() error {
		dl := NewDimensionLabel(c, uri, ref, parentDim)
		require.NoError(t, dl.Open(storage.QueryTypeWrite, 0, 1000, storage.NoEncryption, nil, true, true))
		defer dl.Close()
		name := storage.GenerateFragmentName(dl.IndexedArray().TimestampEnd(), schema.FormatVersion)
		dq, err := NewOrderedWriteQuery(c, dl, nil,
			query.BufferOf(labels), query.Buffer{}, 0, name)
		if err != nil {
			return err
		}
		if err := dq.Process(context.Background()); err != nil {
			return err
		}
		require.True(t, dq.Completed())
		return nil
	}

	require.NoError(t, write())
	err = write()
	require.ErrorIs(t, err, ErrSingleFragmentLabel)
}

func TestOrderedWriteRoundTrip(t *testing.T) {
	// Labels written once read back exactly over any index range.
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})

	dl := f.openLabel(t, storage.QueryTypeRead)
	defer dl.Close()

	parentSchema, err := schema.New(schema.Dense,
		[]schema.Dimension{f.parentDim},
		[]schema.Attribute{schema.NewAttribute("a", datatype.Float64)},
		[]schema.LabelReference{f.ref})
	require.NoError(t, err)
	sa := subarray.New(parentSchema)
	require.NoError(t, sa.AddRange(0, ranges.Make[uint64](2, 4)))

	out := make([]uint64, 3)
	buf := query.BufferOf(out)
	dq, err := NewOrderedReadQuery(f.ctx, dl, sa, buf, 0)
	require.NoError(t, err)
	require.NoError(t, dq.Process(context.Background()))
	require.True(t, dq.Completed())
	assert.Equal(t, []uint64{20, 30, 40}, out)
	assert.Equal(t, uint64(24), *buf.Size)
}

func TestOrderedWriteRejectsPartialSubarray(t *testing.T) {
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, nil)
	dl := f.openLabel(t, storage.QueryTypeWrite)
	defer dl.Close()

	parentSchema, err := schema.New(schema.Dense,
		[]schema.Dimension{f.parentDim}, nil, []schema.LabelReference{f.ref})
	require.NoError(t, err)
	sa := subarray.New(parentSchema)
	require.NoError(t, sa.AddRange(0, ranges.Make[uint64](1, 2)))

	name := storage.GenerateFragmentName(dl.IndexedArray().TimestampEnd(), schema.FormatVersion)
	_, err = NewOrderedWriteQuery(f.ctx, dl, sa,
		query.BufferOf([]uint64{10, 20, 30, 40}), query.Buffer{}, 0, name)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOrderedWriteSharedFragmentTimestamp(t *testing.T) {
	// Both sibling fragments publish under one name, so their timestamps
	// match and a reader sees both writes or neither.
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})

	dl := f.openLabel(t, storage.QueryTypeRead)
	defer dl.Close()
	indexedFrags, err := dl.IndexedArray().Fragments()
	require.NoError(t, err)
	labelledFrags, err := dl.LabelledArray().Fragments()
	require.NoError(t, err)
	require.Len(t, indexedFrags, 1)
	require.Len(t, labelledFrags, 1)
	assert.Equal(t, indexedFrags[0].Name, labelledFrags[0].Name)
	assert.Equal(t, indexedFrags[0].Timestamp, labelledFrags[0].Timestamp)
}

func TestUnorderedWrite(t *testing.T) {
	c := testContext(t)
	parentDim := schema.NewDimension("x", datatype.Uint64, ranges.Make[uint64](1, 4))
	ref := schema.NewLabelReference("tag", 0, schema.UnorderedLabels,
		datatype.Uint64, ranges.Make[uint64](0, 400))
	s, err := schema.New(schema.Dense,
		[]schema.Dimension{parentDim}, nil, []schema.LabelReference{ref})
	require.NoError(t, err)
	uri := t.TempDir() + "/parent"
	require.NoError(t, storage.Create(c, uri, s))

	dl := NewDimensionLabel(c, uri, ref, parentDim)
	require.NoError(t, dl.Open(storage.QueryTypeWrite, 0, 1000, storage.NoEncryption, nil, true, true))
	name := storage.GenerateFragmentName(1000, schema.FormatVersion)
	dq, err := NewUnorderedWriteQuery(c, dl,
		query.BufferOf([]uint64{40, 10, 30, 20}),
		query.BufferOf([]uint64{4, 1, 3, 2}), name)
	require.NoError(t, err)
	require.NoError(t, dq.Process(context.Background()))
	require.True(t, dq.Completed())
	dl.Close()

	// The labelled side reads back sorted by label.
	require.NoError(t, dl.Open(storage.QueryTypeRead, 0, 1000, storage.NoEncryption, nil, true, true))
	defer dl.Close()
	rq, err := query.New(c, dl.LabelledArray())
	require.NoError(t, err)
	lbls := make([]uint64, 4)
	idxs := make([]uint64, 4)
	require.NoError(t, rq.SetDataBuffer(schema.LabelFieldName, query.BufferOf(lbls)))
	require.NoError(t, rq.SetDataBuffer(schema.IndexFieldName, query.BufferOf(idxs)))
	require.NoError(t, rq.Submit(context.Background()))
	assert.Equal(t, []uint64{10, 20, 30, 40}, lbls)
	assert.Equal(t, []uint64{1, 2, 3, 4}, idxs)
}

func TestUnorderedWriteRequiresIndexBuffer(t *testing.T) {
	c := testContext(t)
	parentDim := schema.NewDimension("x", datatype.Uint64, ranges.Make[uint64](1, 4))
	ref := schema.NewLabelReference("tag", 0, schema.UnorderedLabels,
		datatype.Uint64, ranges.Make[uint64](0, 400))
	s, err := schema.New(schema.Dense,
		[]schema.Dimension{parentDim}, nil, []schema.LabelReference{ref})
	require.NoError(t, err)
	uri := t.TempDir() + "/parent"
	require.NoError(t, storage.Create(c, uri, s))

	dl := NewDimensionLabel(c, uri, ref, parentDim)
	require.NoError(t, dl.Open(storage.QueryTypeWrite, 0, 1000, storage.NoEncryption, nil, true, true))
	defer dl.Close()
	_, err = NewUnorderedWriteQuery(c, dl,
		query.BufferOf([]uint64{10, 20}), query.Buffer{},
		storage.GenerateFragmentName(1000, schema.FormatVersion))
	require.ErrorIs(t, err, ErrMissingIndexBuffer)
}

func TestDataQueryStatusComposition(t *testing.T) {
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})
	dl := f.openLabel(t, storage.QueryTypeRead)
	defer dl.Close()

	newChild := func() *query.Query {
		q, err := query.New(c, dl.IndexedArray())
		require.NoError(t, err)
		return q
	}
	completed := func() *query.Query {
		q := newChild()
		out := make([]uint64, 4)
		require.NoError(t, q.SetDataBuffer(schema.LabelFieldName, query.BufferOf(out)))
		require.NoError(t, q.Submit(context.Background()))
		require.Equal(t, query.StatusCompleted, q.Status())
		return q
	}
	failed := func() *query.Query {
		q := newChild()
		require.NoError(t, q.Cancel())
		require.Equal(t, query.StatusFailed, q.Status())
		return q
	}
	incomplete := func() *query.Query {
		q := newChild()
		out := make([]uint64, 1)
		require.NoError(t, q.SetDataBuffer(schema.LabelFieldName, query.BufferOf(out)))
		require.NoError(t, q.Submit(context.Background()))
		require.Equal(t, query.StatusIncomplete, q.Status())
		return q
	}

	t.Run("failed and completed is failed", func(t *testing.T) {
		d := &dataQuery{indexed: failed(), labelled: completed()}
		st, err := d.Status()
		require.NoError(t, err)
		assert.Equal(t, query.StatusFailed, st)
		assert.False(t, d.Completed())
	})

	t.Run("incomplete and completed is incomplete", func(t *testing.T) {
		d := &dataQuery{indexed: incomplete(), labelled: completed()}
		st, err := d.Status()
		require.NoError(t, err)
		assert.Equal(t, query.StatusIncomplete, st)
	})

	t.Run("both completed is completed", func(t *testing.T) {
		d := &dataQuery{indexed: completed(), labelled: completed()}
		st, err := d.Status()
		require.NoError(t, err)
		assert.Equal(t, query.StatusCompleted, st)
		assert.True(t, d.Completed())
	})

	t.Run("uninitialized sibling is a structural bug", func(t *testing.T) {
		d := &dataQuery{indexed: newChild(), labelled: completed()}
		_, err := d.Status()
		require.ErrorIs(t, err, ErrInternal)
	})

	t.Run("single child propagates", func(t *testing.T) {
		d := &dataQuery{indexed: completed()}
		st, err := d.Status()
		require.NoError(t, err)
		assert.Equal(t, query.StatusCompleted, st)
	})
}

func TestDataQueryCancelCascades(t *testing.T) {
	c := testContext(t)
	f := newLabelFixture(t, c, schema.IncreasingLabels, []uint64{10, 20, 30, 40})
	dl := f.openLabel(t, storage.QueryTypeRead)
	defer dl.Close()

	indexed, err := query.New(c, dl.IndexedArray())
	require.NoError(t, err)
	labelled, err := query.New(c, dl.LabelledArray())
	require.NoError(t, err)
	d := &dataQuery{indexed: indexed, labelled: labelled}
	require.NoError(t, d.Cancel())
	require.NoError(t, d.Cancel())
	st, err := d.Status()
	require.NoError(t, err)
	assert.Equal(t, query.StatusFailed, st)
}
