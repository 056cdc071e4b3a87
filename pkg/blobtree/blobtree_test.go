package blobtree

import (
	"context"
	"testing"

	"github.com/iamNilotpal/blobtree/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstance(t *testing.T) *Instance {
	t.Helper()
	dir := t.TempDir()
	inst, err := NewInstance(
		context.Background(),
		"blobtree-test",
		options.WithDataDir(dir),
		options.WithBlockSize(1024),
		options.WithIndexCapacity(1<<20),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(context.Background()) })
	return inst
}

func TestInstanceAllocFindRemove(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	wv, tooBig, err := inst.Alloc(ctx, []byte("k1"), 5)
	require.NoError(t, err)
	require.False(t, tooBig)
	copy(wv.Bytes(), []byte("hello"))
	require.NoError(t, wv.Flush())

	val, _, ok, err := inst.Find(ctx, []byte("k1"), false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), val)

	assert.Equal(t, int64(1), inst.Size())

	ok, err = inst.Remove(ctx, []byte("k1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), inst.Size())
}

func TestInstanceCheckpointAndClose(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	wv, _, err := inst.Alloc(ctx, []byte("a"), 1)
	require.NoError(t, err)
	copy(wv.Bytes(), []byte("x"))
	require.NoError(t, wv.Flush())

	require.NoError(t, inst.Checkpoint(ctx))
	require.NoError(t, inst.Close(ctx))
}
