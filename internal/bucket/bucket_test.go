package bucket

import (
	"testing"

	"github.com/iamNilotpal/blobtree/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitEmptyBucketStats(t *testing.T) {
	block := make([]byte, 128)
	require.NoError(t, Init(block, 128, options.FlatSorted))

	s := Stats(block)
	assert.Equal(t, 0, s.Entries)
	assert.Equal(t, HeaderSize, s.Overhead)
	assert.Equal(t, 0, s.Utilised)
	assert.Equal(t, 0, s.StringBytes)
	assert.Equal(t, 128-HeaderSize, s.Unused)
}

func TestAllocFindIterateSortedOrder(t *testing.T) {
	block := make([]byte, 128)
	require.NoError(t, Init(block, 128, options.FlatSorted))

	writeEntry(t, block, "b", []byte{1})
	writeEntry(t, block, "a", []byte{2, 3})
	writeEntry(t, block, "c", []byte{})

	s := Stats(block)
	assert.Equal(t, 3, s.Entries)
	assert.Equal(t, s.Unused+s.Utilised+s.StringBytes+s.Overhead, 128)

	var cur Cursor
	var gotKeys []string
	var gotValues [][]byte
	for {
		k, off, length, ok := NextTerm(block, &cur)
		if !ok {
			break
		}
		gotKeys = append(gotKeys, string(k))
		gotValues = append(gotValues, append([]byte{}, block[off:off+length]...))
	}

	assert.Equal(t, []string{"a", "b", "c"}, gotKeys)
	assert.Equal(t, []byte{2, 3}, gotValues[0])
	assert.Equal(t, []byte{1}, gotValues[1])
	assert.Equal(t, []byte{}, gotValues[2])
}

func TestFindReturnsLastWrittenValue(t *testing.T) {
	block := make([]byte, 128)
	require.NoError(t, Init(block, 128, options.FlatSorted))
	writeEntry(t, block, "x", []byte{9, 9, 9})

	off, length, ok := Find(block, options.FlatSorted, []byte("x"))
	require.True(t, ok)
	assert.Equal(t, []byte{9, 9, 9}, block[off:off+length])

	_, err := Realloc(block, options.FlatSorted, []byte("x"), 1)
	require.NoError(t, err)

	off, length, ok = Find(block, options.FlatSorted, []byte("x"))
	require.True(t, ok)
	assert.Equal(t, []byte{9}, block[off:off+length])
}

func TestAllocFailsTooBigWhenEntryExceedsEmptyCapacity(t *testing.T) {
	block := make([]byte, 32)
	require.NoError(t, Init(block, 32, options.FlatSorted))

	_, tooBig, err := Alloc(block, options.FlatSorted, []byte("a-very-long-key-indeed"), 100)
	require.Error(t, err)
	assert.True(t, tooBig)
}

func TestAllocFailsNoSpaceWithoutBeingTooBig(t *testing.T) {
	block := make([]byte, 64)
	require.NoError(t, Init(block, 64, options.FlatSorted))

	writeEntry(t, block, "first", make([]byte, 20))

	_, tooBig, err := Alloc(block, options.FlatSorted, []byte("second"), 20)
	require.Error(t, err)
	assert.False(t, tooBig)
}

func TestRemoveCompactsAndReportsMissing(t *testing.T) {
	block := make([]byte, 128)
	require.NoError(t, Init(block, 128, options.FlatUnsorted))

	writeEntry(t, block, "a", []byte{1})
	writeEntry(t, block, "b", []byte{2})

	ok, err := Remove(block, options.FlatUnsorted, []byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, found := Find(block, options.FlatUnsorted, []byte("a"))
	assert.False(t, found)

	ok, err = Remove(block, options.FlatUnsorted, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	s := Stats(block)
	assert.Equal(t, 1, s.Entries)
}

func writeEntry(t *testing.T, block []byte, key string, value []byte) {
	t.Helper()
	off, tooBig, err := Alloc(block, Strategy(block), []byte(key), len(value))
	require.NoError(t, err)
	require.False(t, tooBig)
	copy(block[off:off+len(value)], value)
}
