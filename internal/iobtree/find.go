package iobtree

import (
	"bytes"
	"context"

	"github.com/iamNilotpal/blobtree/internal/bucket"
)

// Find locates key. If writable is false it returns a copy of the value
// bytes and a nil WritableValue. If writable is true it returns a
// WritableValue borrowing the value's on-disk storage directly, scoped
// until Flush or the next mutating tree call.
func (t *Tree) Find(ctx context.Context, key []byte, writable bool) ([]byte, *WritableValue, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endPending()

	_, leafAddr, err := t.descend(ctx, key)
	if err != nil {
		return nil, nil, false, err
	}
	block, h, err := t.readBlock(ctx, leafAddr)
	if err != nil {
		return nil, nil, false, err
	}

	off, length, ok := bucket.Find(bucketSlice(block), t.leafStrategy, key)
	if !ok {
		h.Unpin()
		return nil, nil, false, nil
	}

	valueOff := nodeHeaderSize + off
	if !writable {
		val := append([]byte(nil), block[valueOff:valueOff+length]...)
		h.Unpin()
		return val, nil, true, nil
	}

	wv := &WritableValue{tree: t, block: block, handle: h, addr: leafAddr, off: valueOff, length: length}
	t.pending = wv
	return block[valueOff : valueOff+length], wv, true, nil
}

// Realloc grows or shrinks the value stored under key in place, splitting
// the owning leaf if growing it requires more room than the leaf
// currently has free. tooBig means the new length alone exceeds what an
// empty leaf could ever hold.
func (t *Tree) Realloc(ctx context.Context, key []byte, newValueLen int) (bool, error) {
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

	tooBig, err := bucket.Realloc(bucketSlice(block), t.leafStrategy, key, newValueLen)
	if err == nil {
		werr := t.writeBlock(h, leafAddr, block)
		h.Unpin()
		return false, werr
	}
	h.Unpin()
	if tooBig {
		return true, err
	}

	// Growing the value needs more room than the leaf has free: split it
	// (the key's old, smaller value survives the split intact) and retry
	// in whichever half now holds it.
	rightAddr, minKeyRight, serr := t.splitLeaf(ctx, leafAddr, key)
	if serr != nil {
		return false, serr
	}
	if serr := t.propagateSplit(ctx, path, rightAddr, minKeyRight); serr != nil {
		return false, serr
	}

	target := leafAddr
	if bytes.Compare(key, minKeyRight) >= 0 {
		target = rightAddr
	}
	block, h, err = t.readBlock(ctx, target)
	if err != nil {
		return false, err
	}
	tooBig, err = bucket.Realloc(bucketSlice(block), t.leafStrategy, key, newValueLen)
	if err != nil {
		h.Unpin()
		return tooBig, err
	}
	werr := t.writeBlock(h, target, block)
	h.Unpin()
	return false, werr
}
