package iobtree

import "github.com/iamNilotpal/blobtree/internal/fileset"

// WritableValue is a borrowed, in-memory view onto a value's storage inside
// one leaf block. Alloc and Find(writable) return one to let the caller
// fill in payload bytes after the tree has already decided where they go,
// mirroring the "allocate a pointer, then write through it" contract of
// the block-packing layer without exposing a raw pointer: the borrow is
// scoped to this tree and ends the moment Flush runs or another mutating
// call begins, whichever comes first.
type WritableValue struct {
	tree   *Tree
	block  []byte
	handle *fileset.Handle
	addr   addr
	off    int
	length int
	done   bool
}

// Bytes returns the mutable value region. Writes the caller makes here are
// not durable until Flush is called.
func (w *WritableValue) Bytes() []byte {
	return w.block[w.off : w.off+w.length]
}

// Flush persists the current contents of the value region to disk and
// releases the borrow. Calling Flush twice, or after the tree has already
// closed the borrow on a later mutating call, is a no-op.
func (w *WritableValue) Flush() error {
	if w.done {
		return nil
	}
	w.done = true
	_, err := w.handle.WriteAt(w.block, w.addr.offset)
	w.handle.Unpin()
	if w.tree.pending == w {
		w.tree.pending = nil
	}
	return err
}

// endPending flushes (if a caller never did) and clears any outstanding
// writable borrow. Every mutating Tree method calls this first so the
// borrow's lifetime never outlives "until the next mutating call."
func (t *Tree) endPending() {
	if t.pending != nil {
		_ = t.pending.Flush()
		t.pending = nil
	}
}
