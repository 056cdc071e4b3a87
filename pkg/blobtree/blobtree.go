// Package blobtree provides a persistent, ordered blob store: fixed-size
// blocks packed by internal/bucket, allocated from internal/freemap, held
// in internal/fileset's pinned files, and organized by internal/iobtree's
// B+-tree into an ordered key space.
//
// Instance is the primary entry point for interacting with a blobtree
// store, wrapping the engine's subsystem coordination behind a small,
// stable method surface.
package blobtree

import (
	"context"

	"github.com/iamNilotpal/blobtree/internal/engine"
	"github.com/iamNilotpal/blobtree/internal/iobtree"
	"github.com/iamNilotpal/blobtree/pkg/logger"
	"github.com/iamNilotpal/blobtree/pkg/options"
)

// Instance represents an open blobtree store. It encapsulates the
// underlying engine responsible for data handling and the configuration
// options this instance was opened with.
type Instance struct {
	engine  *engine.Engine   // engine handles allocation, lookup, and persistence.
	options *options.Options // options records the configuration applied to this instance.
}

// NewInstance opens (or creates) a blobtree store rooted at the configured
// data directory. service names this instance in its structured log output,
// useful when a single process embeds more than one store.
func NewInstance(ctx context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	eng, err := engine.New(ctx, &engine.Config{Logger: log, Options: &defaultOpts})
	if err != nil {
		return nil, err
	}

	return &Instance{engine: eng, options: &defaultOpts}, nil
}

// Alloc reserves space for a new entry under key and returns a
// WritableValue the caller writes the payload through. The key must not
// already be present.
func (i *Instance) Alloc(ctx context.Context, key []byte, valueLen int) (*iobtree.WritableValue, bool, error) {
	return i.engine.Alloc(ctx, key, valueLen)
}

// Append reserves space for a new entry whose key must compare greater
// than every key already stored. It produces the same resulting tree as
// Alloc would for the same key, at the cost of rejecting any key that
// isn't strictly ascending.
func (i *Instance) Append(ctx context.Context, key []byte, valueLen int) (*iobtree.WritableValue, bool, error) {
	return i.engine.Append(ctx, key, valueLen)
}

// Find locates key. When writable is true the returned WritableValue
// borrows the on-disk block directly so the caller can mutate the value
// in place; otherwise a fresh copy is returned and no borrow is held.
func (i *Instance) Find(ctx context.Context, key []byte, writable bool) ([]byte, *iobtree.WritableValue, bool, error) {
	return i.engine.Find(ctx, key, writable)
}

// Realloc grows or shrinks the value stored under key in place, without
// disturbing the key's position in the tree.
func (i *Instance) Realloc(ctx context.Context, key []byte, newValueLen int) (bool, error) {
	return i.engine.Realloc(ctx, key, newValueLen)
}

// Remove deletes key. ok is false if key was not present.
func (i *Instance) Remove(ctx context.Context, key []byte) (bool, error) {
	return i.engine.Remove(ctx, key)
}

// NextTerm returns the next (key, value) pair in ascending key order,
// advancing state. A zero-value *iobtree.IterState starts iteration from
// the smallest key; ok is false once every entry has been visited.
func (i *Instance) NextTerm(ctx context.Context, state *iobtree.IterState) ([]byte, []byte, bool, error) {
	return i.engine.NextTerm(ctx, state)
}

// Size returns the number of entries currently stored.
func (i *Instance) Size() int64 {
	return i.engine.Size()
}

// Stats reports the tree's shape and the freemap's utilisation.
func (i *Instance) Stats() iobtree.Stats {
	return i.engine.Stats()
}

// Checkpoint writes the tree's root metadata record, without closing the
// instance. It does not fsync.
func (i *Instance) Checkpoint(ctx context.Context) error {
	return i.engine.Checkpoint(ctx)
}

// Close gracefully shuts down the instance, checkpointing the tree and
// releasing every open file handle.
func (i *Instance) Close(ctx context.Context) error {
	return i.engine.Close()
}
