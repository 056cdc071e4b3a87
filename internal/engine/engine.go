// Package engine provides the core database engine implementation for the
// blobtree store.
//
// The engine serves as the central coordinator and entry point for all
// store operations. It orchestrates the interaction between three main
// subsystems:
//   - Freemap: tracks free byte ranges and grants/reclaims extents
//   - FileSet: owns the numbered, pinned files those extents live in
//   - Tree: the persistent B+-tree packing entries into blocks allocated
//     from the freemap and stored in the file-set
//
// The engine implements a thread-safe interface with proper lifecycle
// management, ensuring resources are properly initialized and cleaned up.
// It uses atomic operations for state management to provide consistent
// behavior across concurrent operations.
package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/iamNilotpal/blobtree/internal/fileset"
	"github.com/iamNilotpal/blobtree/internal/freemap"
	"github.com/iamNilotpal/blobtree/internal/iobtree"
	"github.com/iamNilotpal/blobtree/pkg/options"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrEngineClosed is returned when attempting to perform operations on a closed engine.
var ErrEngineClosed = errors.New("operation failed: cannot access closed engine")

// Engine represents the main database engine that coordinates all subsystems.
// It acts as the primary interface for store operations and manages the
// lifecycle of all internal components. The engine is designed to be
// thread-safe and supports concurrent operations while maintaining data
// consistency.
type Engine struct {
	options *options.Options   // options contains all configuration parameters for the engine and its subsystems.
	log     *zap.SugaredLogger // log provides structured logging capabilities throughout the engine.
	closed  atomic.Bool        // closed is an atomic boolean that tracks the engine's lifecycle state.

	indexFileSet *fileset.FileSet // indexFileSet backs the tree itself.
	tempFileSet  *fileset.FileSet // tempFileSet is scratch space a caller may use independently of the tree.
	freemap      *freemap.Freemap // freemap allocates and frees blocks within indexFileSet.
	tree         *iobtree.Tree    // tree is the persistent B+-tree.
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// New creates and initializes a new Engine instance with the provided configuration.
// This constructor follows the dependency injection pattern, making the engine
// testable and allowing for different configurations in different environments.
//
// Returns:
//   - *Engine: A fully initialized engine ready for use
//   - error: Any error encountered during initialization, typically from
//     file-set or freemap setup
func New(ctx context.Context, config *Config) (*Engine, error) {
	opts := config.Options

	// Initialize the index file-set first: the tree and the freemap both
	// depend on it.
	indexFileSet, err := fileset.New(&fileset.Config{
		DataDir:      opts.DataDir,
		Directory:    opts.IndexFileSet.Directory,
		Prefix:       opts.IndexFileSet.Prefix,
		Capacity:     opts.IndexFileSet.Capacity,
		MaxOpenFiles: opts.MaxOpenFiles,
		Logger:       config.Logger,
	})
	if err != nil {
		return nil, err
	}

	tempFileSet, err := fileset.New(&fileset.Config{
		DataDir:      opts.DataDir,
		Directory:    opts.TempFileSet.Directory,
		Prefix:       opts.TempFileSet.Prefix,
		Capacity:     opts.TempFileSet.Capacity,
		MaxOpenFiles: opts.MaxOpenFiles,
		Logger:       config.Logger,
	})
	if err != nil {
		return nil, err
	}

	fm, err := freemap.New(&freemap.Config{
		Strategy:    opts.FreemapStrategy,
		AppendSlack: opts.AppendSlack,
		Grower:      indexFileSet,
		Logger:      config.Logger,
	})
	if err != nil {
		return nil, err
	}

	tree, err := iobtree.New(ctx, &iobtree.Config{
		BlockSize:    opts.BlockSize,
		LeafStrategy: opts.LeafStrategy,
		NodeStrategy: opts.NodeStrategy,
		Freemap:      fm,
		FileSet:      indexFileSet,
		Logger:       config.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		options:      opts,
		log:          config.Logger,
		indexFileSet: indexFileSet,
		tempFileSet:  tempFileSet,
		freemap:      fm,
		tree:         tree,
	}, nil
}

// Alloc reserves space for a new entry under key.
func (e *Engine) Alloc(ctx context.Context, key []byte, valueLen int) (*iobtree.WritableValue, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrEngineClosed
	}
	return e.tree.Alloc(ctx, key, valueLen)
}

// Append reserves space for a new entry whose key must be greater than
// every key already present.
func (e *Engine) Append(ctx context.Context, key []byte, valueLen int) (*iobtree.WritableValue, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrEngineClosed
	}
	return e.tree.Append(ctx, key, valueLen)
}

// Find locates key.
func (e *Engine) Find(ctx context.Context, key []byte, writable bool) ([]byte, *iobtree.WritableValue, bool, error) {
	if e.closed.Load() {
		return nil, nil, false, ErrEngineClosed
	}
	return e.tree.Find(ctx, key, writable)
}

// Realloc grows or shrinks the value stored under key in place.
func (e *Engine) Realloc(ctx context.Context, key []byte, newValueLen int) (bool, error) {
	if e.closed.Load() {
		return false, ErrEngineClosed
	}
	return e.tree.Realloc(ctx, key, newValueLen)
}

// Remove deletes key.
func (e *Engine) Remove(ctx context.Context, key []byte) (bool, error) {
	if e.closed.Load() {
		return false, ErrEngineClosed
	}
	return e.tree.Remove(ctx, key)
}

// NextTerm returns the next (key, value) pair in ascending key order.
func (e *Engine) NextTerm(ctx context.Context, state *iobtree.IterState) ([]byte, []byte, bool, error) {
	if e.closed.Load() {
		return nil, nil, false, ErrEngineClosed
	}
	return e.tree.NextTerm(ctx, state)
}

// Size returns the number of entries currently stored.
func (e *Engine) Size() int64 {
	return e.tree.Size()
}

// Stats reports the tree's shape and the freemap's utilisation.
func (e *Engine) Stats() iobtree.Stats {
	return e.tree.Stats()
}

// Checkpoint writes the tree's root metadata record to the metadata file.
// It does not fsync.
func (e *Engine) Checkpoint(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.tree.Checkpoint(ctx)
}

// TempFileSet exposes the scratch file-set for callers that need
// independent temporary storage (e.g. bulk-load staging).
func (e *Engine) TempFileSet() *fileset.FileSet {
	return e.tempFileSet
}

// Close gracefully shuts down the engine and releases all associated
// resources. A final checkpoint is attempted before the underlying
// file-sets are closed; failures from every step are combined rather than
// masking one another.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	err := e.tree.Checkpoint(context.Background())
	err = multierr.Append(err, e.indexFileSet.Close())
	err = multierr.Append(err, e.tempFileSet.Close())
	return err
}
