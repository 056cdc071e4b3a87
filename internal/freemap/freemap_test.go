package freemap

import (
	"context"
	"testing"

	"github.com/iamNilotpal/blobtree/pkg/errors"
	"github.com/iamNilotpal/blobtree/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGrower struct {
	fileSize int64
	calls    int
	maxCalls int
}

func (g *stubGrower) GrowFile(ctx context.Context) (int, int64, error) {
	if g.maxCalls > 0 && g.calls >= g.maxCalls {
		return 0, 0, assertError{"no more files"}
	}
	fileNo := g.calls
	g.calls++
	return fileNo, g.fileSize, nil
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func newFreemap(t *testing.T, strategy options.FreemapStrategy, slack uint32, grower Grower) *Freemap {
	t.Helper()
	fm, err := New(&Config{Strategy: strategy, AppendSlack: slack, Grower: grower})
	require.NoError(t, err)
	return fm
}

func TestMallocGrowsFileOnExhaustion(t *testing.T) {
	grower := &stubGrower{fileSize: 1024}
	fm := newFreemap(t, options.FirstFit, 0, grower)

	e, err := fm.Malloc(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, e.File)
	assert.Equal(t, int64(0), e.Offset)
	assert.Equal(t, int64(100), e.Length)
	assert.Equal(t, 1, grower.calls)

	stats := fm.Stats()
	assert.Equal(t, int64(924), stats.FreeBytes)
	assert.Equal(t, int64(1024), stats.TotalCapacity)
}

func TestMallocFailsWithNoSpaceWhenGrowerRefuses(t *testing.T) {
	grower := &stubGrower{fileSize: 10, maxCalls: 1}
	fm := newFreemap(t, options.FirstFit, 0, grower)

	_, err := fm.Malloc(context.Background(), 100)
	require.Error(t, err)
	te, ok := errors.AsTreeError(err)
	require.True(t, ok)
	assert.Equal(t, "NO_SPACE", string(te.Code()))
}

func TestAppendSlackGrantsWholeExtentWhenRemainderSmall(t *testing.T) {
	grower := &stubGrower{fileSize: 1000}
	fm := newFreemap(t, options.FirstFit, 16, grower)

	e, err := fm.Malloc(context.Background(), 990)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), e.Length, "remainder of 10 is within the 16-byte slack, so the whole extent is granted")

	stats := fm.Stats()
	assert.Equal(t, int64(10), stats.WastedBytes)
}

func TestExactMallocNeverOverAllocates(t *testing.T) {
	grower := &stubGrower{fileSize: 1000}
	fm := newFreemap(t, options.FirstFit, 500, grower)

	e, err := fm.MallocExact(context.Background(), 990)
	require.NoError(t, err)
	assert.Equal(t, int64(990), e.Length)

	stats := fm.Stats()
	assert.Equal(t, int64(0), stats.WastedBytes)
	assert.Equal(t, int64(10), stats.FreeBytes)
}

func TestFreeCoalescesAdjacentExtents(t *testing.T) {
	grower := &stubGrower{fileSize: 1000}
	fm := newFreemap(t, options.FirstFit, 0, grower)

	a, err := fm.MallocExact(context.Background(), 300)
	require.NoError(t, err)
	b, err := fm.MallocExact(context.Background(), 300)
	require.NoError(t, err)

	require.NoError(t, fm.Free(a.File, a.Offset, a.Length))
	require.NoError(t, fm.Free(b.File, b.Offset, b.Length))

	stats := fm.Stats()
	assert.Equal(t, 1, stats.ExtentCount, "the two freed extents should coalesce with each other and the remainder into one")
	assert.Equal(t, int64(1000), stats.FreeBytes)
}

func TestReallocExtendsInPlace(t *testing.T) {
	grower := &stubGrower{fileSize: 1000}
	fm := newFreemap(t, options.FirstFit, 0, grower)

	e, err := fm.MallocExact(context.Background(), 100)
	require.NoError(t, err)

	extra, err := fm.Realloc(e.File, e.Offset, e.Length, 200, true)
	require.NoError(t, err)
	assert.Equal(t, int64(200), extra)

	_, err = fm.Realloc(e.File, e.Offset, 300, 10000, true)
	require.Error(t, err)
}

func TestBestFitPicksSmallestSufficientExtent(t *testing.T) {
	grower := &stubGrower{fileSize: 1}
	fm := newFreemap(t, options.BestFit, 0, grower)

	require.NoError(t, fm.Free(0, 0, 500))
	require.NoError(t, fm.Free(1, 0, 200))
	require.NoError(t, fm.Free(2, 0, 800))

	e, err := fm.MallocExact(context.Background(), 150)
	require.NoError(t, err)
	assert.Equal(t, 1, e.File, "200-byte extent is the smallest that still fits 150")
}

func TestWorstFitPicksLargestExtent(t *testing.T) {
	grower := &stubGrower{fileSize: 1}
	fm := newFreemap(t, options.WorstFit, 0, grower)

	require.NoError(t, fm.Free(0, 0, 500))
	require.NoError(t, fm.Free(1, 0, 200))
	require.NoError(t, fm.Free(2, 0, 800))

	e, err := fm.MallocExact(context.Background(), 150)
	require.NoError(t, err)
	assert.Equal(t, 2, e.File)
}

func TestMallocAtSucceedsOnlyAtExactLocation(t *testing.T) {
	grower := &stubGrower{fileSize: 1}
	fm := newFreemap(t, options.FirstFit, 0, grower)
	require.NoError(t, fm.Free(0, 100, 50))

	_, err := fm.MallocAt(0, 90, 10, true)
	assert.Error(t, err)

	e, err := fm.MallocAt(0, 100, 50, true)
	require.NoError(t, err)
	assert.Equal(t, int64(50), e.Length)
}
