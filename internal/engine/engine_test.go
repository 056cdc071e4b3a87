package engine

import (
	"context"
	"testing"

	"github.com/iamNilotpal/blobtree/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()
	opts.BlockSize = 1024
	opts.IndexFileSet.Capacity = 1 << 20
	opts.TempFileSet.Capacity = 1 << 20

	eng, err := New(context.Background(), &Config{Options: &opts})
	require.NoError(t, err)
	return eng
}

func TestEngineAllocFindClose(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	wv, tooBig, err := eng.Alloc(ctx, []byte("key"), 3)
	require.NoError(t, err)
	require.False(t, tooBig)
	copy(wv.Bytes(), []byte("abc"))
	require.NoError(t, wv.Flush())

	val, _, ok, err := eng.Find(ctx, []byte("key"), false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), val)

	require.NoError(t, eng.Close())
}

func TestEngineRejectsOperationsAfterClose(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Close())

	_, _, err := eng.Alloc(context.Background(), []byte("x"), 1)
	assert.ErrorIs(t, err, ErrEngineClosed)

	_, err = eng.Remove(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngineCloseIsIdempotentlyRejectedOnSecondCall(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Close())
	assert.ErrorIs(t, eng.Close(), ErrEngineClosed)
}

func TestEngineTempFileSetIsIndependent(t *testing.T) {
	eng := newTestEngine(t)
	defer eng.Close()

	tmp := eng.TempFileSet()
	require.NotNil(t, tmp)

	fileNo, _, err := tmp.GrowFile(context.Background())
	require.NoError(t, err)
	h, err := tmp.Pin(context.Background(), fileNo)
	require.NoError(t, err)
	assert.NotNil(t, h)
	h.Unpin()
}
