package ranges

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axisdb/axisdb/datatype"
)

func TestSetDefaultState(t *testing.T) {
	s := NewSetAndSuperset(datatype.Uint64, Make[uint64](0, 400), true)
	assert.True(t, s.IsDefault())
	assert.False(t, s.IsEmpty())
	assert.False(t, s.IsExplicitlyInitialized())
	assert.Equal(t, 0, s.NumRanges())
}

func TestSetEmptyDistinctFromDefault(t *testing.T) {
	s := NewSetAndSuperset(datatype.Uint64, Make[uint64](0, 400), false)
	assert.False(t, s.IsDefault())
	assert.True(t, s.IsEmpty())
}

func TestSetAddRange(t *testing.T) {
	s := NewSetAndSuperset(datatype.Uint64, Make[uint64](0, 400), true)
	r := Make[uint64](20, 30)
	require.NoError(t, s.AddRange(r, false))
	assert.False(t, s.IsDefault())
	assert.True(t, s.IsExplicitlyInitialized())
	require.Equal(t, 1, s.NumRanges())
	lo, hi := Values[uint64](s.Ranges()[0])
	assert.Equal(t, uint64(20), lo)
	assert.Equal(t, uint64(30), hi)
}

func TestSetAddRangeOutOfDomain(t *testing.T) {
	s := NewSetAndSuperset(datatype.Uint64, Make[uint64](0, 400), true)
	err := s.AddRange(Make[uint64](100, 500), false)
	require.ErrorIs(t, err, ErrOutOfDomain)
	assert.True(t, s.IsDefault())
	assert.Equal(t, 0, s.NumRanges())
}

func TestSetAddRangeReadOnlyCrops(t *testing.T) {
	s := NewSetAndSuperset(datatype.Uint64, Make[uint64](10, 400), true)
	require.NoError(t, s.AddRange(Make[uint64](0, 500), true))
	require.Equal(t, 1, s.NumRanges())
	lo, hi := Values[uint64](s.Ranges()[0])
	assert.Equal(t, uint64(10), lo)
	assert.Equal(t, uint64(400), hi)
}

func TestSetAddEmptyRange(t *testing.T) {
	s := NewSetAndSuperset(datatype.Uint64, Make[uint64](0, 400), true)
	err := s.AddRange(nil, false)
	require.Error(t, err)
}
