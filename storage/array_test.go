package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axisdb/axisdb/datatype"
	"github.com/axisdb/axisdb/ranges"
	"github.com/axisdb/axisdb/schema"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	c := NewContext()
	t.Cleanup(c.Close)
	return c
}

func testSchema(t *testing.T) *schema.ArraySchema {
	t.Helper()
	s, err := schema.New(schema.Dense,
		[]schema.Dimension{schema.NewDimension("x", datatype.Uint64, ranges.Make[uint64](1, 4))},
		[]schema.Attribute{schema.NewAttribute("a", datatype.Float64)},
		nil)
	require.NoError(t, err)
	return s
}

func TestCreateAndOpen(t *testing.T) {
	c := testContext(t)
	uri := filepath.Join(t.TempDir(), "arr")
	require.NoError(t, Create(c, uri, testSchema(t)))

	// Creating twice fails.
	require.Error(t, Create(c, uri, testSchema(t)))

	a := NewArray(c, uri)
	require.NoError(t, a.Open(QueryTypeRead, 0, 0, NoEncryption, nil))
	defer a.Close()

	s, err := a.Schema()
	require.NoError(t, err)
	assert.True(t, s.Dense())

	empty, err := a.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	qt, err := a.QueryType()
	require.NoError(t, err)
	assert.Equal(t, QueryTypeRead, qt)
}

func TestOpenMissingArray(t *testing.T) {
	c := testContext(t)
	a := NewArray(c, filepath.Join(t.TempDir(), "nope"))
	err := a.Open(QueryTypeRead, 0, 0, NoEncryption, nil)
	require.ErrorIs(t, err, ErrNoSuchArray)
}

func TestOpenEncryptedRejected(t *testing.T) {
	c := testContext(t)
	uri := filepath.Join(t.TempDir(), "arr")
	require.NoError(t, Create(c, uri, testSchema(t)))
	a := NewArray(c, uri)
	err := a.Open(QueryTypeRead, 0, 0, AES256GCM, []byte("key"))
	require.ErrorIs(t, err, ErrUnsupportedEncryption)
}

func TestWriteFragmentRoundTrip(t *testing.T) {
	c := testContext(t)
	uri := filepath.Join(t.TempDir(), "arr")
	require.NoError(t, Create(c, uri, testSchema(t)))

	w := NewArray(c, uri)
	require.NoError(t, w.Open(QueryTypeWrite, 0, 1000, NoEncryption, nil))
	name := GenerateFragmentName(w.TimestampEnd(), schema.FormatVersion)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, w.WriteFragment(name, 1, map[string][]byte{"a": payload}))
	w.Close()

	r := NewArray(c, uri)
	require.NoError(t, r.Open(QueryTypeRead, 0, 1000, NoEncryption, nil))
	defer r.Close()
	frags, err := r.Fragments()
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, name, frags[0].Name)
	assert.Equal(t, uint64(1000), frags[0].Timestamp)
	assert.Equal(t, payload, frags[0].Fields["a"])

	empty, err := r.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestTimestampWindowFiltersFragments(t *testing.T) {
	c := testContext(t)
	uri := filepath.Join(t.TempDir(), "arr")
	require.NoError(t, Create(c, uri, testSchema(t)))

	w := NewArray(c, uri)
	require.NoError(t, w.Open(QueryTypeWrite, 0, 500, NoEncryption, nil))
	require.NoError(t, w.WriteFragment(
		GenerateFragmentName(500, schema.FormatVersion), 1,
		map[string][]byte{"a": {1}}))
	w.Close()

	early := NewArray(c, uri)
	require.NoError(t, early.Open(QueryTypeRead, 0, 100, NoEncryption, nil))
	defer early.Close()
	empty, err := early.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestWriteRequiresWriteOpen(t *testing.T) {
	c := testContext(t)
	uri := filepath.Join(t.TempDir(), "arr")
	require.NoError(t, Create(c, uri, testSchema(t)))
	a := NewArray(c, uri)
	require.NoError(t, a.Open(QueryTypeRead, 0, 0, NoEncryption, nil))
	defer a.Close()
	err := a.WriteFragment(GenerateFragmentName(1, 1), 1, map[string][]byte{"a": {1}})
	require.Error(t, err)
}

func TestFragmentNameParsing(t *testing.T) {
	name := GenerateFragmentName(12345, 1)
	ts, err := parseFragmentName(name)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), ts)

	_, err = parseFragmentName("not-a-fragment")
	require.ErrorIs(t, err, ErrCorruptFragment)
}

func TestCreateWithLabelsCreatesSiblings(t *testing.T) {
	c := testContext(t)
	s, err := schema.New(schema.Dense,
		[]schema.Dimension{schema.NewDimension("x", datatype.Uint64, ranges.Make[uint64](1, 4))},
		[]schema.Attribute{schema.NewAttribute("a", datatype.Float64)},
		[]schema.LabelReference{schema.NewLabelReference("height", 0, schema.IncreasingLabels,
			datatype.Uint64, ranges.Make[uint64](0, 400))})
	require.NoError(t, err)

	uri := filepath.Join(t.TempDir(), "arr")
	require.NoError(t, Create(c, uri, s))

	labelDir := filepath.Join(uri, "__labels", "height")
	for _, sub := range []string{IndexedArrayName, LabelledArrayName} {
		_, err := os.Stat(filepath.Join(labelDir, sub, schemaFileName))
		require.NoError(t, err, sub)
	}
	_, err = os.Stat(filepath.Join(labelDir, LabelSchemaFileName))
	require.NoError(t, err)

	// The labelled sibling is sparse over the label domain.
	lab := NewArray(c, filepath.Join(labelDir, LabelledArrayName))
	require.NoError(t, lab.Open(QueryTypeRead, 0, 0, NoEncryption, nil))
	defer lab.Close()
	ls, err := lab.Schema()
	require.NoError(t, err)
	assert.False(t, ls.Dense())
	assert.Equal(t, schema.LabelFieldName, ls.Dimensions[0].Name)
}
