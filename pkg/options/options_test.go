package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultOptionsIndependentCopies(t *testing.T) {
	a := NewDefaultOptions()
	b := NewDefaultOptions()

	a.IndexFileSet.Prefix = "mutated"

	require.NotNil(t, b.IndexFileSet)
	assert.Equal(t, DefaultIndexPrefix, b.IndexFileSet.Prefix)
	assert.Equal(t, "mutated", a.IndexFileSet.Prefix)
}

func TestWithBlockSizeRejectsOutOfRange(t *testing.T) {
	o := NewDefaultOptions()
	WithBlockSize(MinBlockSize - 1)(&o)
	assert.Equal(t, DefaultBlockSize, o.BlockSize, "out-of-range block size must be ignored")

	WithBlockSize(16384)(&o)
	assert.Equal(t, uint32(16384), o.BlockSize)
}

func TestWithAppendSlackRejectsOutOfRange(t *testing.T) {
	o := NewDefaultOptions()
	WithAppendSlack(MaxAppendSlack + 1)(&o)
	assert.Equal(t, DefaultAppendSlack, o.AppendSlack)

	WithAppendSlack(128)(&o)
	assert.Equal(t, uint32(128), o.AppendSlack)
}

func TestWithDataDirTrimsAndIgnoresEmpty(t *testing.T) {
	o := NewDefaultOptions()
	WithDataDir("  ")(&o)
	assert.Equal(t, DefaultDataDir, o.DataDir)

	WithDataDir("  /srv/data  ")(&o)
	assert.Equal(t, "/srv/data", o.DataDir)
}

func TestFunctionalOptionsCompose(t *testing.T) {
	o := NewDefaultOptions()
	for _, apply := range []OptionFunc{
		WithDataDir("/srv/blobtree"),
		WithBlockSize(4096),
		WithFreemapStrategy(BestFit),
		WithMaxOpenFiles(8),
	} {
		apply(&o)
	}

	assert.Equal(t, "/srv/blobtree", o.DataDir)
	assert.Equal(t, uint32(4096), o.BlockSize)
	assert.Equal(t, BestFit, o.FreemapStrategy)
	assert.Equal(t, 8, o.MaxOpenFiles)
}

func TestBucketStrategyString(t *testing.T) {
	assert.Equal(t, "flat_sorted", FlatSorted.String())
	assert.Equal(t, "flat_unsorted", FlatUnsorted.String())
	assert.Equal(t, "unknown", BucketStrategy(99).String())
}

func TestFreemapStrategyString(t *testing.T) {
	assert.Equal(t, "first_fit", FirstFit.String())
	assert.Equal(t, "best_fit", BestFit.String())
	assert.Equal(t, "worst_fit", WorstFit.String())
	assert.Equal(t, "unknown", FreemapStrategy(99).String())
}
