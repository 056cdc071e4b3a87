package iobtree

import (
	"bytes"
	"context"

	"github.com/iamNilotpal/blobtree/internal/bucket"
	"github.com/iamNilotpal/blobtree/internal/fileset"
	"github.com/iamNilotpal/blobtree/pkg/errors"
	"github.com/iamNilotpal/blobtree/pkg/options"
)

// Alloc reserves space for a new entry under key, returning a
// WritableValue the caller fills in with the payload before calling
// Flush. tooBig means the entry alone exceeds what an empty leaf could
// ever hold; retrying cannot help.
func (t *Tree) Alloc(ctx context.Context, key []byte, valueLen int) (*WritableValue, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endPending()
	return t.insert(ctx, key, valueLen)
}

// Append is Alloc restricted to strictly-ascending keys: key must compare
// greater than every key already present. It shares Alloc's insertion
// path end to end, so it always produces the same tree Alloc would for
// the same sequence of keys; the restriction exists so callers bulk
// loading sorted data get an explicit precondition check rather than a
// silently-accepted out-of-order key.
func (t *Tree) Append(ctx context.Context, key []byte, valueLen int) (*WritableValue, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endPending()

	if t.maxKey != nil && bytes.Compare(key, t.maxKey) <= 0 {
		return nil, false, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "append requires a key greater than every key already present").
			WithOperation("Append").WithKey(string(key))
	}
	return t.insert(ctx, key, valueLen)
}

func (t *Tree) insert(ctx context.Context, key []byte, valueLen int) (*WritableValue, bool, error) {
	path, leafAddr, err := t.descend(ctx, key)
	if err != nil {
		return nil, false, err
	}

	block, h, err := t.readBlock(ctx, leafAddr)
	if err != nil {
		return nil, false, err
	}

	off, tooBig, err := bucket.Alloc(bucketSlice(block), t.leafStrategy, key, valueLen)
	if err == nil {
		return t.finishInsert(h, leafAddr, block, key, off, valueLen)
	}
	h.Unpin()

	if tooBig || errors.GetErrorCode(err) != errors.ErrorCodeNoSpace {
		return nil, tooBig, err
	}

	// No room in this leaf: split it and retry in whichever half now
	// holds key.
	rightAddr, minKeyRight, err := t.splitLeaf(ctx, leafAddr, key)
	if err != nil {
		return nil, false, err
	}
	if err := t.propagateSplit(ctx, path, rightAddr, minKeyRight); err != nil {
		return nil, false, err
	}

	target := leafAddr
	if bytes.Compare(key, minKeyRight) >= 0 {
		target = rightAddr
	}
	block, h, err = t.readBlock(ctx, target)
	if err != nil {
		return nil, false, err
	}
	off, tooBig, err = bucket.Alloc(bucketSlice(block), t.leafStrategy, key, valueLen)
	if err != nil {
		h.Unpin()
		return nil, tooBig, err
	}
	return t.finishInsert(h, target, block, key, off, valueLen)
}

func (t *Tree) finishInsert(h *fileset.Handle, a addr, block []byte, key []byte, off, valueLen int) (*WritableValue, bool, error) {
	t.count++
	if t.maxKey == nil || bytes.Compare(key, t.maxKey) > 0 {
		t.maxKey = append([]byte(nil), key...)
	}
	if err := t.writeBlock(h, a, block); err != nil {
		h.Unpin()
		return nil, false, err
	}
	wv := &WritableValue{tree: t, block: block, handle: h, addr: a, off: nodeHeaderSize + off, length: valueLen}
	t.pending = wv
	return wv, false, nil
}

// splitLeaf redistributes leafAddr's entries across the original block
// and a freshly allocated right sibling, splitting by count, and returns
// the new sibling's address and the smallest key that moved right.
//
// insertKey is the key the caller is about to retry after the split; it
// only matters for a single-entry leaf, where a plain count split (mid =
// len/2 = 0) leaves one side with the sole existing entry and the other
// empty. Splitting blindly can place insertKey on the side that still
// holds the original entry, which is exactly as full as before and
// sends the retry straight back into NoSpace. Biasing the lone entry
// away from insertKey guarantees the retry always lands in the empty,
// freshly-initialised half.
func (t *Tree) splitLeaf(ctx context.Context, leafAddr addr, insertKey []byte) (addr, []byte, error) {
	block, h, err := t.readBlock(ctx, leafAddr)
	if err != nil {
		return addr{}, nil, err
	}
	defer h.Unpin()

	pairs := bucket.All(bucketSlice(block))
	var leftPairs, rightPairs []bucket.Pair
	if len(pairs) <= 1 {
		// <= rather than < so a Realloc retry (insertKey equal to the
		// lone entry's own key, growing its value) stays collocated with
		// that entry instead of being routed to the empty half.
		if len(pairs) == 1 && bytes.Compare(insertKey, pairs[0].Key) <= 0 {
			leftPairs, rightPairs = nil, pairs
		} else {
			leftPairs, rightPairs = pairs, nil
		}
	} else {
		mid := len(pairs) / 2
		leftPairs, rightPairs = pairs[:mid], pairs[mid:]
	}

	oldRight, hadRight := nodeRightSibling(block)

	rightAddr, err := t.newLeaf(ctx)
	if err != nil {
		return addr{}, nil, err
	}
	rBlock, rh, err := t.readBlock(ctx, rightAddr)
	if err != nil {
		return addr{}, nil, err
	}
	defer rh.Unpin()

	if err := fillBucket(bucketSlice(rBlock), t.leafStrategy, rightPairs); err != nil {
		return addr{}, nil, err
	}
	setNodeRightSibling(rBlock, oldRight, hadRight)
	if err := t.writeBlock(rh, rightAddr, rBlock); err != nil {
		return addr{}, nil, err
	}

	if err := bucket.Init(bucketSlice(block), len(bucketSlice(block)), t.leafStrategy); err != nil {
		return addr{}, nil, err
	}
	if err := fillBucket(bucketSlice(block), t.leafStrategy, leftPairs); err != nil {
		return addr{}, nil, err
	}
	setNodeRightSibling(block, rightAddr, true)
	if err := t.writeBlock(h, leafAddr, block); err != nil {
		return addr{}, nil, err
	}

	minKeyRight := insertKey
	if len(rightPairs) > 0 {
		minKeyRight = rightPairs[0].Key
	}
	return rightAddr, minKeyRight, nil
}

// splitInternal redistributes an internal node's routing entries across
// the original block and a new right sibling, promoting the middle entry
// to the caller instead of duplicating it: its key becomes the split key
// and its child address becomes the right sibling's leftmost child.
func (t *Tree) splitInternal(ctx context.Context, nodeAddr addr) (addr, []byte, error) {
	block, h, err := t.readBlock(ctx, nodeAddr)
	if err != nil {
		return addr{}, nil, err
	}
	defer h.Unpin()

	pairs := bucket.All(bucketSlice(block))
	mid := len(pairs) / 2
	leftPairs := pairs[:mid]
	promoted := pairs[mid]
	rightPairs := pairs[mid+1:]

	rightAddr, err := t.newInternal(ctx)
	if err != nil {
		return addr{}, nil, err
	}
	rBlock, rh, err := t.readBlock(ctx, rightAddr)
	if err != nil {
		return addr{}, nil, err
	}
	defer rh.Unpin()

	setLeftmostChild(rBlock, decodeAddr(promoted.Value))
	if err := fillBucket(bucketSlice(rBlock), t.nodeStrategy, rightPairs); err != nil {
		return addr{}, nil, err
	}
	if err := t.writeBlock(rh, rightAddr, rBlock); err != nil {
		return addr{}, nil, err
	}

	if err := bucket.Init(bucketSlice(block), len(bucketSlice(block)), t.nodeStrategy); err != nil {
		return addr{}, nil, err
	}
	if err := fillBucket(bucketSlice(block), t.nodeStrategy, leftPairs); err != nil {
		return addr{}, nil, err
	}
	if err := t.writeBlock(h, nodeAddr, block); err != nil {
		return addr{}, nil, err
	}

	return rightAddr, promoted.Key, nil
}

// fillBucket allocates every pair into an already-initialized, empty
// bucket slice, copying each value's bytes in immediately after Alloc
// returns its offset.
func fillBucket(bs []byte, strategy options.BucketStrategy, pairs []bucket.Pair) error {
	for _, p := range pairs {
		off, _, err := bucket.Alloc(bs, strategy, p.Key, len(p.Value))
		if err != nil {
			return err
		}
		copy(bs[off:off+len(p.Value)], p.Value)
	}
	return nil
}

// propagateSplit inserts a routing entry (minKeyRight -> rightAddr) into
// the parent named by the top of path, splitting that parent too (and
// recursing further up) if it has no room, or creating a new root if
// path is empty because the node that just split was the root.
func (t *Tree) propagateSplit(ctx context.Context, path []frame, rightAddr addr, minKeyRight []byte) error {
	if len(path) == 0 {
		newRootAddr, err := t.newInternal(ctx)
		if err != nil {
			return err
		}
		block, h, err := t.readBlock(ctx, newRootAddr)
		if err != nil {
			return err
		}
		setLeftmostChild(block, t.root)
		off, _, err := bucket.Alloc(bucketSlice(block), t.nodeStrategy, minKeyRight, addrSize)
		if err != nil {
			h.Unpin()
			return err
		}
		copy(block[nodeHeaderSize+off:nodeHeaderSize+off+addrSize], encodeAddr(rightAddr))
		if err := t.writeBlock(h, newRootAddr, block); err != nil {
			h.Unpin()
			return err
		}
		h.Unpin()

		t.root = newRootAddr
		t.height++
		return nil
	}

	parent := path[len(path)-1]
	block, h, err := t.readBlock(ctx, parent.addr)
	if err != nil {
		return err
	}
	off, tooBig, err := bucket.Alloc(bucketSlice(block), t.nodeStrategy, minKeyRight, addrSize)
	if err == nil {
		copy(block[nodeHeaderSize+off:nodeHeaderSize+off+addrSize], encodeAddr(rightAddr))
		werr := t.writeBlock(h, parent.addr, block)
		h.Unpin()
		return werr
	}
	h.Unpin()
	if tooBig {
		return err
	}
	if errors.GetErrorCode(err) != errors.ErrorCodeNoSpace {
		return err
	}

	rAddr2, minKey2, err := t.splitInternal(ctx, parent.addr)
	if err != nil {
		return err
	}
	target := parent.addr
	if bytes.Compare(minKeyRight, minKey2) >= 0 {
		target = rAddr2
	}
	block, h, err = t.readBlock(ctx, target)
	if err != nil {
		return err
	}
	off, _, err = bucket.Alloc(bucketSlice(block), t.nodeStrategy, minKeyRight, addrSize)
	if err != nil {
		h.Unpin()
		return err
	}
	copy(block[nodeHeaderSize+off:nodeHeaderSize+off+addrSize], encodeAddr(rightAddr))
	if err := t.writeBlock(h, target, block); err != nil {
		h.Unpin()
		return err
	}
	h.Unpin()

	return t.propagateSplit(ctx, path[:len(path)-1], rAddr2, minKey2)
}
