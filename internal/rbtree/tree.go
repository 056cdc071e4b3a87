// Package rbtree implements a generic red-black tree with a shared sentinel
// node and a modification counter that invalidates in-flight iterators. It
// backs the freemap's two indices: one ordered by (file, offset), the other
// by extent length for best/worst-fit search.
package rbtree

import (
	"github.com/iamNilotpal/blobtree/pkg/errors"
)

// Comparator orders two keys: negative if a < b, zero if equal, positive if
// a > b. Any totally-ordered key space works, including composite keys such
// as (file, offset) pairs — the tree itself only ever calls this function.
type Comparator[K any] func(a, b K) int

type color uint8

const (
	red color = iota
	black
)

type node[K any, V any] struct {
	key    K
	value  V
	color  color
	left   *node[K, V]
	right  *node[K, V]
	parent *node[K, V]
}

// Tree is a red-black tree mapping keys of type K to values of type V.
// It is not safe for concurrent use; callers serialize access the way the
// rest of this module does.
type Tree[K any, V any] struct {
	nilNode *node[K, V]
	root    *node[K, V]
	cmp     Comparator[K]
	size    int
	modCount uint64
}

// New creates an empty tree ordered by cmp.
func New[K any, V any](cmp Comparator[K]) *Tree[K, V] {
	sentinel := &node[K, V]{color: black}
	sentinel.left = sentinel
	sentinel.right = sentinel
	sentinel.parent = sentinel
	return &Tree[K, V]{
		nilNode: sentinel,
		root:    sentinel,
		cmp:     cmp,
	}
}

// Size returns the number of entries currently stored.
func (t *Tree[K, V]) Size() int {
	return t.size
}

// Clear empties the tree in O(1), discarding every node.
func (t *Tree[K, V]) Clear() {
	t.root = t.nilNode
	t.size = 0
	t.modCount++
}

// Find looks up key, returning its value and true if present.
func (t *Tree[K, V]) Find(key K) (V, bool) {
	n := t.search(key)
	if n == t.nilNode {
		var zero V
		return zero, false
	}
	return n.value, true
}

// FindNear returns the entry with the largest key less than or equal to
// key (a "floor" search), used by the freemap's Free to locate the extent
// immediately preceding a freed range for backward coalescing. ok is
// false if no such entry exists.
func (t *Tree[K, V]) FindNear(key K) (foundKey K, value V, ok bool) {
	n := t.root
	var best *node[K, V]
	for n != t.nilNode {
		c := t.cmp(n.key, key)
		switch {
		case c == 0:
			return n.key, n.value, true
		case c < 0:
			best = n
			n = n.right
		default:
			n = n.left
		}
	}
	if best == nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	return best.key, best.value, true
}

// FindCeil returns the entry with the smallest key greater than or equal to
// key (a "ceiling" search), the symmetric counterpart to FindNear. The
// freemap's best-fit strategy uses it to locate the smallest extent that
// still satisfies a request.
func (t *Tree[K, V]) FindCeil(key K) (foundKey K, value V, ok bool) {
	n := t.root
	var best *node[K, V]
	for n != t.nilNode {
		c := t.cmp(n.key, key)
		switch {
		case c == 0:
			return n.key, n.value, true
		case c > 0:
			best = n
			n = n.left
		default:
			n = n.right
		}
	}
	if best == nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	return best.key, best.value, true
}

// Max returns the entry with the largest key in the tree.
func (t *Tree[K, V]) Max() (key K, value V, ok bool) {
	if t.root == t.nilNode {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	n := t.root
	for n.right != t.nilNode {
		n = n.right
	}
	return n.key, n.value, true
}

func (t *Tree[K, V]) search(key K) *node[K, V] {
	n := t.root
	for n != t.nilNode {
		c := t.cmp(key, n.key)
		switch {
		case c == 0:
			return n
		case c < 0:
			n = n.left
		default:
			n = n.right
		}
	}
	return t.nilNode
}

// Insert adds key/value to the tree. It returns an *errors.TreeError with
// ErrorCodeExists if key is already present.
func (t *Tree[K, V]) Insert(key K, value V) error {
	var parent *node[K, V] = t.nilNode
	cur := t.root

	for cur != t.nilNode {
		parent = cur
		c := t.cmp(key, cur.key)
		switch {
		case c == 0:
			return errors.NewKeyExistsError("Insert", keyString(key))
		case c < 0:
			cur = cur.left
		default:
			cur = cur.right
		}
	}

	n := &node[K, V]{key: key, value: value, color: red, left: t.nilNode, right: t.nilNode, parent: parent}
	switch {
	case parent == t.nilNode:
		t.root = n
	case t.cmp(key, parent.key) < 0:
		parent.left = n
	default:
		parent.right = n
	}

	t.insertFixup(n)
	t.size++
	t.modCount++
	return nil
}

// Remove deletes key from the tree. It returns an *errors.TreeError with
// ErrorCodeNotFound if key is absent.
func (t *Tree[K, V]) Remove(key K) error {
	n := t.search(key)
	if n == t.nilNode {
		return errors.NewKeyNotFoundError("Remove", keyString(key))
	}
	t.deleteNode(n)
	t.size--
	t.modCount++
	return nil
}

func (t *Tree[K, V]) leftRotate(x *node[K, V]) {
	y := x.right
	x.right = y.left
	if y.left != t.nilNode {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == t.nilNode:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *Tree[K, V]) rightRotate(x *node[K, V]) {
	y := x.left
	x.left = y.right
	if y.right != t.nilNode {
		y.right.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == t.nilNode:
		t.root = y
	case x == x.parent.right:
		x.parent.right = y
	default:
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func (t *Tree[K, V]) insertFixup(z *node[K, V]) {
	for z.parent.color == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.leftRotate(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.rightRotate(z.parent.parent)
		} else {
			y := z.parent.parent.left
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rightRotate(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.leftRotate(z.parent.parent)
		}
	}
	t.root.color = black
}

func (t *Tree[K, V]) transplant(u, v *node[K, V]) {
	switch {
	case u.parent == t.nilNode:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *Tree[K, V]) minimum(n *node[K, V]) *node[K, V] {
	for n.left != t.nilNode {
		n = n.left
	}
	return n
}

func (t *Tree[K, V]) deleteNode(z *node[K, V]) {
	y := z
	yOriginalColor := y.color
	var x *node[K, V]

	switch {
	case z.left == t.nilNode:
		x = z.right
		t.transplant(z, z.right)
	case z.right == t.nilNode:
		x = z.left
		t.transplant(z, z.left)
	default:
		y = t.minimum(z.right)
		yOriginalColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yOriginalColor == black {
		t.deleteFixup(x)
	}
}

func (t *Tree[K, V]) deleteFixup(x *node[K, V]) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.leftRotate(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
				continue
			}
			if w.right.color == black {
				w.left.color = black
				w.color = red
				t.rightRotate(w)
				w = x.parent.right
			}
			w.color = x.parent.color
			x.parent.color = black
			w.right.color = black
			t.leftRotate(x.parent)
			x = t.root
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rightRotate(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
				continue
			}
			if w.left.color == black {
				w.right.color = black
				w.color = red
				t.leftRotate(w)
				w = x.parent.left
			}
			w.color = x.parent.color
			x.parent.color = black
			w.left.color = black
			t.rightRotate(x.parent)
			x = t.root
		}
	}
	x.color = black
}

func keyString(k any) string {
	type stringer interface{ String() string }
	if s, ok := k.(stringer); ok {
		return s.String()
	}
	return ""
}
