package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUint64ToInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := Uint64ToInt(123)
		assert.NoError(t, err)
		assert.Equal(t, 123, got)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := Uint64ToInt(math.MaxUint64)
		assert.Error(t, err)
	})
}

func TestIntToUint64(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := IntToUint64(42)
		assert.NoError(t, err)
		assert.Equal(t, uint64(42), got)
	})

	t.Run("negative", func(t *testing.T) {
		_, err := IntToUint64(-1)
		assert.Error(t, err)
	})
}

func TestUint64ToUint32(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := Uint64ToUint32(7)
		assert.NoError(t, err)
		assert.Equal(t, uint32(7), got)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := Uint64ToUint32(math.MaxUint32 + 1)
		assert.Error(t, err)
	})
}
