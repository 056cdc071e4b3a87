package iobtree

import (
	"bytes"
	"context"
	"sort"

	"github.com/iamNilotpal/blobtree/internal/bucket"
	"github.com/iamNilotpal/blobtree/internal/fileset"
	"github.com/iamNilotpal/blobtree/pkg/errors"
	"github.com/iamNilotpal/blobtree/pkg/options"
)

// Remove deletes key. ok is false if key was not present. After the
// removal, the owning leaf is rebalanced: if it drops below the minimum
// occupancy (including becoming empty) it merges with an adjacent sibling
// or, failing that, redistributes a single entry across the boundary and
// updates the parent's routing key. A merge removes a routing entry from
// the parent, so rebalancing cascades upward through however many
// ancestors end up under-occupied, including collapsing a lone surviving
// child into its own parent and, ultimately, shrinking the root.
func (t *Tree) Remove(ctx context.Context, key []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endPending()

	path, leafAddr, err := t.descend(ctx, key)
	if err != nil {
		return false, err
	}
	block, h, err := t.readBlock(ctx, leafAddr)
	if err != nil {
		return false, err
	}

	ok, err := bucket.Remove(bucketSlice(block), t.leafStrategy, key)
	if err != nil {
		h.Unpin()
		return false, err
	}
	if !ok {
		h.Unpin()
		return false, nil
	}
	t.count--

	if werr := t.writeBlock(h, leafAddr, block); werr != nil {
		h.Unpin()
		return false, werr
	}
	h.Unpin()

	if len(path) > 0 {
		if err := t.rebalance(ctx, path, leafAddr, true); err != nil {
			return false, err
		}
	}
	return true, nil
}

// spliceOp describes what the cascade needs to do to one ancestor's
// reference to the child it just lost: either drop the reference
// entirely (the child had nothing left), or repoint it at a surviving
// grandchild (the child collapsed to a single remaining subtree).
type spliceOp struct {
	remove    bool
	replace   bool
	newTarget addr
}

func applyOp(block []byte, pf frame, strategy options.BucketStrategy, op spliceOp) error {
	if pf.viaLeftmost {
		switch {
		case op.remove:
			var cursor bucket.Cursor
			k, off, length, more := bucket.NextTerm(bucketSlice(block), &cursor)
			if more {
				newLeftmost := decodeAddr(block[nodeHeaderSize+off : nodeHeaderSize+off+length])
				if _, err := bucket.Remove(bucketSlice(block), strategy, k); err != nil {
					return err
				}
				setLeftmostChild(block, newLeftmost)
			} else {
				clearLeftmostChild(block)
			}
		case op.replace:
			setLeftmostChild(block, op.newTarget)
		}
		return nil
	}

	switch {
	case op.remove:
		_, err := bucket.Remove(bucketSlice(block), strategy, pf.viaKey)
		return err
	case op.replace:
		off, length, ok := bucket.Find(bucketSlice(block), strategy, pf.viaKey)
		if ok {
			copy(block[nodeHeaderSize+off:nodeHeaderSize+off+length], encodeAddr(op.newTarget))
		}
	}
	return nil
}

// bucketUnderOccupied reports whether a block's packed contents use less
// than half its capacity — the same minimum-fill rule classic B-trees
// apply to child count, expressed in bytes since entries here are
// variable width.
func bucketUnderOccupied(bs []byte) bool {
	st := bucket.Stats(bs)
	used := st.Overhead + st.Utilised + st.StringBytes
	return used*2 < len(bs)
}

// orderedChild pairs a parent's routing key with the child address it
// routes to, in ascending key order regardless of the parent's own
// packing strategy, so sibling adjacency reflects real key order even
// under FlatUnsorted.
type orderedChild struct {
	key  []byte
	addr addr
}

func orderedChildren(parentBlock []byte) []orderedChild {
	pairs := bucket.All(bucketSlice(parentBlock))
	out := make([]orderedChild, len(pairs))
	for i, p := range pairs {
		out[i] = orderedChild{key: p.Key, addr: decodeAddr(p.Value)}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].key, out[j].key) < 0 })
	return out
}

// slotIndex returns where the child named by pf sits among its parent's
// children: 0 is the implicit leftmost child, i+1 is the child reached
// via ordered[i]'s routing key.
func slotIndex(pf frame, ordered []orderedChild) int {
	if pf.viaLeftmost {
		return 0
	}
	for i, c := range ordered {
		if bytes.Equal(c.key, pf.viaKey) {
			return i + 1
		}
	}
	return 0
}

func slotAddr(leftmost addr, ordered []orderedChild, slot int) addr {
	if slot == 0 {
		return leftmost
	}
	return ordered[slot-1].addr
}

func sortedPairs(bs []byte) []bucket.Pair {
	pairs := bucket.All(bs)
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].Key, pairs[j].Key) < 0 })
	return pairs
}

// fitsInOneBucket reports whether pairs can be packed into a single,
// freshly initialized bucket of capacity bytes, returning the rendered
// bucket contents on success.
func (t *Tree) fitsInOneBucket(strategy options.BucketStrategy, capacity int, pairs []bucket.Pair) ([]byte, bool) {
	buf := make([]byte, capacity)
	if err := bucket.Init(buf, capacity, strategy); err != nil {
		return nil, false
	}
	if err := fillBucket(buf, strategy, pairs); err != nil {
		return nil, false
	}
	return buf, true
}

// rebalance restores the minimum-occupancy invariant for node (a leaf
// when isLeaf, an internal node otherwise) after a removal. A node that
// is no longer under-occupied is left alone. Otherwise it merges with
// whichever adjacent sibling exists (right preferred over left), or, if
// the combined contents don't fit in one block, redistributes a single
// entry across the boundary and updates the parent's separator key. A
// successful merge removes a routing entry from the parent, so the parent
// itself is recursively rebalanced. A root with no sibling to act on may
// legitimately sit under-occupied (possibly empty), in which case an
// empty internal root collapses by adopting its sole surviving child and
// shrinking height, and an empty leaf root is left as an empty tree.
func (t *Tree) rebalance(ctx context.Context, path []frame, node addr, isLeaf bool) error {
	block, h, err := t.readBlock(ctx, node)
	if err != nil {
		return err
	}
	entries := bucket.Entries(bucketSlice(block))
	underfull := entries == 0 || bucketUnderOccupied(bucketSlice(block))
	survivor, hasSurvivor := leftmostChild(block)
	h.Unpin()

	if !underfull {
		return nil
	}

	if len(path) == 0 {
		if !isLeaf && entries == 0 {
			old := t.root
			if hasSurvivor {
				t.root = survivor
				t.height--
				return t.freeNode(old)
			}
			newRoot, err := t.newLeaf(ctx)
			if err != nil {
				return err
			}
			t.root = newRoot
			t.height = 1
			return t.freeNode(old)
		}
		return nil
	}

	pf := path[len(path)-1]
	parentBlock, ph, err := t.readBlock(ctx, pf.addr)
	if err != nil {
		return err
	}
	ordered := orderedChildren(parentBlock)
	leftmost, _ := leftmostChild(parentBlock)
	idx := slotIndex(pf, ordered)
	ph.Unpin()

	if idx < len(ordered) {
		rightAddr := ordered[idx].addr
		sep := ordered[idx].key
		merged, err := t.mergeOrBorrow(ctx, pf.addr, node, rightAddr, sep, true, isLeaf)
		if err != nil {
			return err
		}
		if merged {
			return t.rebalance(ctx, path[:len(path)-1], pf.addr, false)
		}
		return nil
	}
	if idx > 0 {
		leftAddr := slotAddr(leftmost, ordered, idx-1)
		sep := ordered[idx-1].key
		merged, err := t.mergeOrBorrow(ctx, pf.addr, leftAddr, node, sep, false, isLeaf)
		if err != nil {
			return err
		}
		if merged {
			return t.rebalance(ctx, path[:len(path)-1], pf.addr, false)
		}
		return nil
	}

	// Sole child of its parent: no sibling to merge with or borrow from.
	// If there's still data, leave it rather than lose it. If it's
	// genuinely empty, splice its sole surviving child (internal) or
	// nothing (leaf) into the parent's slot in its place, freeing it and
	// letting the parent's own now-lighter occupancy drive a further
	// cascade.
	if entries > 0 {
		return nil
	}
	return t.collapseSoleChild(ctx, path, node, survivor, hasSurvivor, isLeaf)
}

func (t *Tree) collapseSoleChild(ctx context.Context, path []frame, node, survivor addr, hasSurvivor, isLeaf bool) error {
	if err := t.freeNode(node); err != nil {
		return err
	}

	pf := path[len(path)-1]
	block, h, err := t.readBlock(ctx, pf.addr)
	if err != nil {
		return err
	}
	op := spliceOp{remove: true}
	if !isLeaf && hasSurvivor {
		op = spliceOp{replace: true, newTarget: survivor}
	}
	if err := applyOp(block, pf, t.nodeStrategy, op); err != nil {
		h.Unpin()
		return err
	}
	if err := t.writeBlock(h, pf.addr, block); err != nil {
		h.Unpin()
		return err
	}
	h.Unpin()

	return t.rebalance(ctx, path[:len(path)-1], pf.addr, false)
}

// mergeOrBorrow attempts to merge rightAddr's contents into leftAddr,
// freeing rightAddr and removing sep from parentAddr, and falls back to
// moving exactly one entry across the leftAddr/rightAddr boundary
// (updating sep in place) when the combined contents don't fit in one
// block. underfullIsLeft says which side triggered the rebalance, so a
// redistribution borrows from the side that has room to spare.
func (t *Tree) mergeOrBorrow(ctx context.Context, parentAddr, leftAddr, rightAddr addr, sep []byte, underfullIsLeft, isLeaf bool) (bool, error) {
	if isLeaf {
		return t.mergeOrBorrowLeaves(ctx, parentAddr, leftAddr, rightAddr, sep, underfullIsLeft)
	}
	return t.mergeOrBorrowInternal(ctx, parentAddr, leftAddr, rightAddr, sep, underfullIsLeft)
}

func (t *Tree) mergeOrBorrowLeaves(ctx context.Context, parentAddr, leftAddr, rightAddr addr, sep []byte, underfullIsLeft bool) (bool, error) {
	leftBlock, lh, err := t.readBlock(ctx, leftAddr)
	if err != nil {
		return false, err
	}
	rightBlock, rh, err := t.readBlock(ctx, rightAddr)
	if err != nil {
		lh.Unpin()
		return false, err
	}

	leftPairs := sortedPairs(bucketSlice(leftBlock))
	rightPairs := sortedPairs(bucketSlice(rightBlock))
	capacity := len(bucketSlice(leftBlock))

	combined := append(append([]bucket.Pair(nil), leftPairs...), rightPairs...)
	if buf, ok := t.fitsInOneBucket(t.leafStrategy, capacity, combined); ok {
		rightNext, hasNext := nodeRightSibling(rightBlock)
		finalBlock := make([]byte, t.blockSize)
		setNodeIsLeaf(finalBlock, true)
		setNodeRightSibling(finalBlock, rightNext, hasNext)
		copy(finalBlock[nodeHeaderSize:], buf)

		if err := t.writeBlock(lh, leftAddr, finalBlock); err != nil {
			lh.Unpin()
			rh.Unpin()
			return false, err
		}
		lh.Unpin()
		rh.Unpin()

		if err := t.freeNode(rightAddr); err != nil {
			return false, err
		}
		return true, t.removeParentSeparatorKey(ctx, parentAddr, sep)
	}

	if underfullIsLeft {
		moved := rightPairs[0]
		newLeft := append(append([]bucket.Pair(nil), leftPairs...), moved)
		newRight := rightPairs[1:]
		if err := t.rewriteLeaf(lh, leftAddr, leftBlock, newLeft); err != nil {
			lh.Unpin()
			rh.Unpin()
			return false, err
		}
		if err := t.rewriteLeaf(rh, rightAddr, rightBlock, newRight); err != nil {
			lh.Unpin()
			rh.Unpin()
			return false, err
		}
		lh.Unpin()
		rh.Unpin()
		return false, t.replaceParentSeparatorKey(ctx, parentAddr, sep, newRight[0].Key)
	}

	moved := leftPairs[len(leftPairs)-1]
	newLeft := leftPairs[:len(leftPairs)-1]
	newRight := append([]bucket.Pair{moved}, rightPairs...)
	if err := t.rewriteLeaf(lh, leftAddr, leftBlock, newLeft); err != nil {
		lh.Unpin()
		rh.Unpin()
		return false, err
	}
	if err := t.rewriteLeaf(rh, rightAddr, rightBlock, newRight); err != nil {
		lh.Unpin()
		rh.Unpin()
		return false, err
	}
	lh.Unpin()
	rh.Unpin()
	return false, t.replaceParentSeparatorKey(ctx, parentAddr, sep, moved.Key)
}

func (t *Tree) rewriteLeaf(h *fileset.Handle, a addr, block []byte, pairs []bucket.Pair) error {
	if err := bucket.Init(bucketSlice(block), len(bucketSlice(block)), t.leafStrategy); err != nil {
		return err
	}
	if err := fillBucket(bucketSlice(block), t.leafStrategy, pairs); err != nil {
		return err
	}
	return t.writeBlock(h, a, block)
}

// mergeOrBorrowInternal is mergeOrBorrowLeaves' counterpart for internal
// nodes. Both sides' leftmost-child pointers and the bridging separator
// are folded into one ordered [addr, sep, addr, sep, ...] view, which
// makes a merge (take every slot) and a one-step redistribution (shift
// the split point by one slot) the same operation at different split
// points.
func (t *Tree) mergeOrBorrowInternal(ctx context.Context, parentAddr, leftAddr, rightAddr addr, sep []byte, underfullIsLeft bool) (bool, error) {
	leftBlock, lh, err := t.readBlock(ctx, leftAddr)
	if err != nil {
		return false, err
	}
	rightBlock, rh, err := t.readBlock(ctx, rightAddr)
	if err != nil {
		lh.Unpin()
		return false, err
	}

	leftLeftmost, _ := leftmostChild(leftBlock)
	rightLeftmost, _ := leftmostChild(rightBlock)
	leftPairs := sortedPairs(bucketSlice(leftBlock))
	rightPairs := sortedPairs(bucketSlice(rightBlock))

	addrs := make([]addr, 0, len(leftPairs)+len(rightPairs)+2)
	seps := make([][]byte, 0, len(leftPairs)+len(rightPairs)+1)
	addrs = append(addrs, leftLeftmost)
	for _, p := range leftPairs {
		seps = append(seps, p.Key)
		addrs = append(addrs, decodeAddr(p.Value))
	}
	seps = append(seps, sep)
	addrs = append(addrs, rightLeftmost)
	for _, p := range rightPairs {
		seps = append(seps, p.Key)
		addrs = append(addrs, decodeAddr(p.Value))
	}

	capacity := len(bucketSlice(leftBlock))
	mergedPairs := make([]bucket.Pair, 0, len(addrs)-1)
	for i := 1; i < len(addrs); i++ {
		mergedPairs = append(mergedPairs, bucket.Pair{Key: seps[i-1], Value: encodeAddr(addrs[i])})
	}

	if buf, ok := t.fitsInOneBucket(t.nodeStrategy, capacity, mergedPairs); ok {
		finalBlock := make([]byte, t.blockSize)
		setNodeIsLeaf(finalBlock, false)
		setLeftmostChild(finalBlock, addrs[0])
		copy(finalBlock[nodeHeaderSize:], buf)

		if err := t.writeBlock(lh, leftAddr, finalBlock); err != nil {
			lh.Unpin()
			rh.Unpin()
			return false, err
		}
		lh.Unpin()
		rh.Unpin()

		if err := t.freeNode(rightAddr); err != nil {
			return false, err
		}
		return true, t.removeParentSeparatorKey(ctx, parentAddr, sep)
	}

	splitAt := len(leftPairs) + 1
	if underfullIsLeft {
		splitAt++
	} else {
		splitAt--
	}
	newLeftLeftmost, newLeftPairs, newSep, newRightLeftmost, newRightPairs := splitCombinedSlots(addrs, seps, splitAt)

	if err := t.rewriteInternal(lh, leftAddr, leftBlock, newLeftLeftmost, newLeftPairs); err != nil {
		lh.Unpin()
		rh.Unpin()
		return false, err
	}
	if err := t.rewriteInternal(rh, rightAddr, rightBlock, newRightLeftmost, newRightPairs); err != nil {
		lh.Unpin()
		rh.Unpin()
		return false, err
	}
	lh.Unpin()
	rh.Unpin()
	return false, t.replaceParentSeparatorKey(ctx, parentAddr, sep, newSep)
}

// splitCombinedSlots rebuilds the left/right node contents and the new
// parent separator for a combined [leftmost, (sep, addr), ...] view split
// at slot index splitAt (1 <= splitAt <= len(addrs)-1): addrs[0:splitAt]
// become the left node, addrs[splitAt:] become the right node, and
// seps[splitAt-1] becomes the new separator between them.
func splitCombinedSlots(addrs []addr, seps [][]byte, splitAt int) (leftLeftmost addr, leftPairs []bucket.Pair, parentSep []byte, rightLeftmost addr, rightPairs []bucket.Pair) {
	leftLeftmost = addrs[0]
	for i := 1; i < splitAt; i++ {
		leftPairs = append(leftPairs, bucket.Pair{Key: seps[i-1], Value: encodeAddr(addrs[i])})
	}
	parentSep = seps[splitAt-1]
	rightLeftmost = addrs[splitAt]
	for i := splitAt + 1; i < len(addrs); i++ {
		rightPairs = append(rightPairs, bucket.Pair{Key: seps[i-1], Value: encodeAddr(addrs[i])})
	}
	return
}

func (t *Tree) rewriteInternal(h *fileset.Handle, a addr, block []byte, leftmost addr, pairs []bucket.Pair) error {
	setLeftmostChild(block, leftmost)
	if err := bucket.Init(bucketSlice(block), len(bucketSlice(block)), t.nodeStrategy); err != nil {
		return err
	}
	if err := fillBucket(bucketSlice(block), t.nodeStrategy, pairs); err != nil {
		return err
	}
	return t.writeBlock(h, a, block)
}

func (t *Tree) removeParentSeparatorKey(ctx context.Context, parentAddr addr, key []byte) error {
	block, h, err := t.readBlock(ctx, parentAddr)
	if err != nil {
		return err
	}
	if _, err := bucket.Remove(bucketSlice(block), t.nodeStrategy, key); err != nil {
		h.Unpin()
		return err
	}
	if err := t.writeBlock(h, parentAddr, block); err != nil {
		h.Unpin()
		return err
	}
	h.Unpin()
	return nil
}

func (t *Tree) replaceParentSeparatorKey(ctx context.Context, parentAddr addr, oldKey, newKey []byte) error {
	block, h, err := t.readBlock(ctx, parentAddr)
	if err != nil {
		return err
	}
	off, length, ok := bucket.Find(bucketSlice(block), t.nodeStrategy, oldKey)
	if !ok {
		h.Unpin()
		return errors.NewTreeError(nil, errors.ErrorCodeInternal, "separator key missing during redistribute").WithOperation("replaceParentSeparatorKey")
	}
	valueBytes := append([]byte(nil), block[nodeHeaderSize+off:nodeHeaderSize+off+length]...)

	if _, err := bucket.Remove(bucketSlice(block), t.nodeStrategy, oldKey); err != nil {
		h.Unpin()
		return err
	}
	newOff, tooBig, err := bucket.Alloc(bucketSlice(block), t.nodeStrategy, newKey, len(valueBytes))
	if err != nil {
		h.Unpin()
		if tooBig {
			return errors.NewTreeError(nil, errors.ErrorCodeInternal, "no room to rewrite separator key during redistribute").WithOperation("replaceParentSeparatorKey")
		}
		return err
	}
	copy(block[nodeHeaderSize+newOff:nodeHeaderSize+newOff+len(valueBytes)], valueBytes)

	if err := t.writeBlock(h, parentAddr, block); err != nil {
		h.Unpin()
		return err
	}
	h.Unpin()
	return nil
}
