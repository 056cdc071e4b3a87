package rbtree

import "github.com/iamNilotpal/blobtree/pkg/errors"

// Order selects the shape of a tree traversal.
type Order uint8

const (
	// InOrder visits nodes in ascending key order (or descending, reversed).
	InOrder Order = iota
	// PreOrder visits a node before its children.
	PreOrder
	// PostOrder visits a node after its children.
	PostOrder
)

// Iterator is a lazy, finite, non-restartable walk over a tree's entries.
// It is invalidated the instant the tree is mutated after the iterator was
// created: a stale iterator's Next returns an *errors.TreeError with
// ErrorCodeInvalid rather than silently producing garbage.
type Iterator[K any, V any] struct {
	tree     *Tree[K, V]
	modCount uint64
	order    Order
	reversed bool

	stack *Stack[*node[K, V]]
	cur   *node[K, V]
	last  *node[K, V] // postorder: most recently emitted node

	done bool
}

// Iter starts a new iterator over t in the given order. reversed mirrors
// the traversal (descending instead of ascending for InOrder; right-before-
// left instead of left-before-right for PreOrder/PostOrder).
func (t *Tree[K, V]) Iter(order Order, reversed bool) *Iterator[K, V] {
	it := &Iterator[K, V]{
		tree:     t,
		modCount: t.modCount,
		order:    order,
		reversed: reversed,
		stack:    NewStack[*node[K, V]](),
	}

	switch order {
	case PreOrder:
		if t.root != t.nilNode {
			it.stack.Push(t.root)
		}
	case InOrder:
		it.cur = t.root
	case PostOrder:
		it.cur = t.root
	}

	return it
}

func (it *Iterator[K, V]) left(n *node[K, V]) *node[K, V] {
	if it.reversed {
		return n.right
	}
	return n.left
}

func (it *Iterator[K, V]) right(n *node[K, V]) *node[K, V] {
	if it.reversed {
		return n.left
	}
	return n.right
}

// Next advances the iterator, returning the next key/value pair. ok is
// false once the traversal is exhausted.
func (it *Iterator[K, V]) Next() (key K, value V, ok bool, err error) {
	if it.modCount != it.tree.modCount {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "tree was modified during iteration").WithOperation("iterate")
	}
	if it.done {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false, nil
	}

	var n *node[K, V]
	switch it.order {
	case PreOrder:
		n = it.nextPreOrder()
	case InOrder:
		n = it.nextInOrder()
	case PostOrder:
		n = it.nextPostOrder()
	}

	if n == nil {
		it.done = true
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false, nil
	}
	return n.key, n.value, true, nil
}

func (it *Iterator[K, V]) nextPreOrder() *node[K, V] {
	n, ok := it.stack.Pop()
	if !ok {
		return nil
	}
	if r := it.right(n); r != it.tree.nilNode {
		it.stack.Push(r)
	}
	if l := it.left(n); l != it.tree.nilNode {
		it.stack.Push(l)
	}
	return n
}

func (it *Iterator[K, V]) nextInOrder() *node[K, V] {
	for it.cur != it.tree.nilNode {
		it.stack.Push(it.cur)
		it.cur = it.left(it.cur)
	}
	n, ok := it.stack.Pop()
	if !ok {
		return nil
	}
	it.cur = it.right(n)
	return n
}

func (it *Iterator[K, V]) nextPostOrder() *node[K, V] {
	for {
		for it.cur != it.tree.nilNode {
			it.stack.Push(it.cur)
			it.cur = it.left(it.cur)
		}

		top, ok := it.stack.Peek()
		if !ok {
			return nil
		}

		r := it.right(top)
		if r != it.tree.nilNode && r != it.last {
			it.cur = r
			continue
		}

		it.stack.Pop()
		it.last = top
		return top
	}
}
