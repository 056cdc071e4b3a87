package rbtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intCmp(a, b int) int { return a - b }

func TestInsertFindRemove(t *testing.T) {
	tr := New[int, string](intCmp)

	require.NoError(t, tr.Insert(5, "five"))
	require.NoError(t, tr.Insert(2, "two"))
	require.NoError(t, tr.Insert(8, "eight"))
	assert.Equal(t, 3, tr.Size())

	v, ok := tr.Find(2)
	require.True(t, ok)
	assert.Equal(t, "two", v)

	err := tr.Insert(5, "five-again")
	require.Error(t, err)
	assert.True(t, IsExists(err))

	require.NoError(t, tr.Remove(2))
	assert.Equal(t, 2, tr.Size())
	_, ok = tr.Find(2)
	assert.False(t, ok)

	err = tr.Remove(2)
	require.Error(t, err)
}

func TestFindNearFloorSemantics(t *testing.T) {
	tr := New[int, string](intCmp)
	for _, k := range []int{10, 20, 30, 40} {
		require.NoError(t, tr.Insert(k, "v"))
	}

	k, _, ok := tr.FindNear(25)
	require.True(t, ok)
	assert.Equal(t, 20, k)

	k, _, ok = tr.FindNear(10)
	require.True(t, ok)
	assert.Equal(t, 10, k)

	_, _, ok = tr.FindNear(5)
	assert.False(t, ok)
}

func TestClearResetsSize(t *testing.T) {
	tr := New[int, int](intCmp)
	for i := 0; i < 50; i++ {
		require.NoError(t, tr.Insert(i, i*i))
	}
	tr.Clear()
	assert.Equal(t, 0, tr.Size())
	_, ok := tr.Find(0)
	assert.False(t, ok)
}

func TestInsertManyRandomOrderStaysOrdered(t *testing.T) {
	tr := New[int, int](intCmp)
	keys := []int{50, 20, 70, 10, 30, 60, 80, 5, 15, 25, 35, 55, 65, 75, 90}
	for _, k := range keys {
		require.NoError(t, tr.Insert(k, k))
	}

	it := tr.Iter(InOrder, false)
	var seen []int
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, k)
	}

	require.Len(t, seen, len(keys))
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i])
	}
}

func TestIterInOrderReversedDescends(t *testing.T) {
	tr := New[int, int](intCmp)
	for _, k := range []int{3, 1, 4, 1, 5, 9, 2, 6} {
		_ = tr.Insert(k, k) // duplicates intentionally ignored
	}

	it := tr.Iter(InOrder, true)
	var prev *int
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		if prev != nil {
			assert.Greater(t, *prev, k)
		}
		kk := k
		prev = &kk
	}
}

func TestIterPreOrderAndPostOrderVisitEveryNode(t *testing.T) {
	tr := New[int, int](intCmp)
	for i := 0; i < 20; i++ {
		require.NoError(t, tr.Insert(i, i))
	}

	countOrder := func(order Order) int {
		it := tr.Iter(order, false)
		n := 0
		for {
			_, _, ok, err := it.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			n++
		}
		return n
	}

	assert.Equal(t, 20, countOrder(PreOrder))
	assert.Equal(t, 20, countOrder(PostOrder))
}

func TestIteratorInvalidatedByMutation(t *testing.T) {
	tr := New[int, int](intCmp)
	for i := 0; i < 5; i++ {
		require.NoError(t, tr.Insert(i, i))
	}

	it := tr.Iter(InOrder, false)
	_, _, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tr.Insert(100, 100))

	_, _, _, err = it.Next()
	require.Error(t, err)
}

func TestFindCeilAndMax(t *testing.T) {
	tr := New[int, string](intCmp)
	for _, k := range []int{10, 20, 30, 40} {
		require.NoError(t, tr.Insert(k, "v"))
	}

	k, _, ok := tr.FindCeil(25)
	require.True(t, ok)
	assert.Equal(t, 30, k)

	k, _, ok = tr.FindCeil(40)
	require.True(t, ok)
	assert.Equal(t, 40, k)

	_, _, ok = tr.FindCeil(41)
	assert.False(t, ok)

	k, _, ok = tr.Max()
	require.True(t, ok)
	assert.Equal(t, 40, k)
}

func TestRemoveRebalancesAcrossManyDeletions(t *testing.T) {
	tr := New[int, int](intCmp)
	for i := 0; i < 200; i++ {
		require.NoError(t, tr.Insert(i, i))
	}
	for i := 0; i < 150; i++ {
		require.NoError(t, tr.Remove(i))
	}
	assert.Equal(t, 50, tr.Size())

	it := tr.Iter(InOrder, false)
	var seen []int
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, k)
	}
	require.Len(t, seen, 50)
	assert.Equal(t, 150, seen[0])
	assert.Equal(t, 199, seen[len(seen)-1])
}
