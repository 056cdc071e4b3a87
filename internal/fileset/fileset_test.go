package fileset

import (
	"context"
	"testing"

	"github.com/iamNilotpal/blobtree/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileSet(t *testing.T, maxOpen int) *FileSet {
	t.Helper()
	fs, err := New(&Config{
		DataDir:      t.TempDir(),
		Directory:    "index",
		Prefix:       "index",
		Capacity:     4096,
		MaxOpenFiles: maxOpen,
	})
	require.NoError(t, err)
	return fs
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := newTestFileSet(t, 4)

	h, err := fs.Create(ctx, 0)
	require.NoError(t, err)

	payload := []byte("hello bucket")
	_, err = h.WriteAt(payload, 0)
	require.NoError(t, err)
	h.Unpin()

	h2, err := fs.Pin(ctx, 0)
	require.NoError(t, err)
	defer h2.Unpin()

	buf := make([]byte, len(payload))
	_, err = h2.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, buf)
}

func TestPinUnknownFileFails(t *testing.T) {
	fs := newTestFileSet(t, 4)
	_, err := fs.Pin(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, errors.IsTreeError(err))
}

func TestOpenFileBudgetEvictsUnpinnedHandles(t *testing.T) {
	ctx := context.Background()
	fs := newTestFileSet(t, 2)

	h0, err := fs.Create(ctx, 0)
	require.NoError(t, err)
	h0.Unpin()

	h1, err := fs.Create(ctx, 1)
	require.NoError(t, err)
	h1.Unpin()

	// Creating a third file should evict file 0 (unpinned) rather than fail.
	h2, err := fs.Create(ctx, 2)
	require.NoError(t, err)
	h2.Unpin()

	// Re-pinning file 0 must still work: it was evicted, not forgotten.
	h0again, err := fs.Pin(ctx, 0)
	require.NoError(t, err)
	h0again.Unpin()
}

func TestBudgetExhaustedByPinnedFilesFailsBusy(t *testing.T) {
	ctx := context.Background()
	fs := newTestFileSet(t, 1)

	h0, err := fs.Create(ctx, 0)
	require.NoError(t, err)
	defer h0.Unpin()

	_, err = fs.Create(ctx, 1)
	require.Error(t, err)
	te, ok := errors.AsTreeError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCodeBusy, te.Code())
}

func TestUnlinkRemovesBackingFile(t *testing.T) {
	ctx := context.Background()
	fs := newTestFileSet(t, 4)

	h, err := fs.Create(ctx, 0)
	require.NoError(t, err)
	h.Unpin()

	require.NoError(t, fs.Unlink(0))

	_, err = fs.Pin(ctx, 0)
	require.Error(t, err)
}

func TestGrowFileAssignsSequentialIndices(t *testing.T) {
	ctx := context.Background()
	fs := newTestFileSet(t, 4)

	i0, size0, err := fs.GrowFile(ctx)
	require.NoError(t, err)
	i1, size1, err := fs.GrowFile(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)
	assert.Equal(t, int64(4096), size0)
	assert.Equal(t, int64(4096), size1)
}
