package iobtree

import (
	"context"

	"github.com/iamNilotpal/blobtree/internal/bucket"
)

// IterState is externally-held iteration state for NextTerm, analogous to
// bucket.Cursor but spanning the whole tree by following leaf
// right-sibling pointers. Its zero value starts iteration from the
// smallest key.
type IterState struct {
	started bool
	leaf    addr
	cursor  bucket.Cursor
}

// NextTerm returns the next (key, value) pair in ascending key order.
// ok is false once every entry has been visited.
func (t *Tree) NextTerm(ctx context.Context, state *IterState) (key []byte, value []byte, ok bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !state.started {
		leafAddr, err := t.leftmostLeaf(ctx)
		if err != nil {
			return nil, nil, false, err
		}
		state.leaf = leafAddr
		state.started = true
	}

	for {
		block, h, err := t.readBlock(ctx, state.leaf)
		if err != nil {
			return nil, nil, false, err
		}

		k, off, length, more := bucket.NextTerm(bucketSlice(block), &state.cursor)
		if more {
			val := append([]byte(nil), block[nodeHeaderSize+off:nodeHeaderSize+off+length]...)
			key = append([]byte(nil), k...)
			h.Unpin()
			return key, val, true, nil
		}

		next, has := nodeRightSibling(block)
		h.Unpin()
		if !has {
			return nil, nil, false, nil
		}
		state.leaf = next
		state.cursor = bucket.Cursor{}
	}
}

func (t *Tree) leftmostLeaf(ctx context.Context) (addr, error) {
	cur := t.root
	for {
		block, h, err := t.readBlock(ctx, cur)
		if err != nil {
			return addr{}, err
		}
		if nodeIsLeaf(block) {
			h.Unpin()
			return cur, nil
		}
		lm, _ := leftmostChild(block)
		h.Unpin()
		cur = lm
	}
}
