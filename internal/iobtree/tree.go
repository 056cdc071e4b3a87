// Package iobtree implements a persistent B+-tree over blocks allocated
// from a freemap and stored in a file-set, using bucket to pack each
// node's entries. Leaves form a singly linked list (via the node header's
// right-sibling pointer) for ordered iteration; internal nodes route on a
// routing key equal to the minimum key reachable through their right
// child, with an implicit leftmost child for keys below every routing
// key.
package iobtree

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/iamNilotpal/blobtree/internal/bucket"
	"github.com/iamNilotpal/blobtree/internal/fileset"
	"github.com/iamNilotpal/blobtree/internal/freemap"
	"github.com/iamNilotpal/blobtree/pkg/errors"
	"github.com/iamNilotpal/blobtree/pkg/options"
	"go.uber.org/zap"
)

// metaFileNo is the file reserved, outside the freemap's allocation
// space, for the tree's root metadata record. Claiming it directly
// through the file-set (rather than through the freemap) guarantees the
// freemap never hands it out as allocatable space: file-set growth
// always assigns sequentially from the file-set's own next-index
// counter, which this claim advances past zero before the freemap ever
// calls GrowFile.
const metaFileNo = 0

// metaRecordSize is the fixed width of the persisted root-metadata
// record: u32 rootFile, u64 rootOffset, u32 height, u64 count, u64
// xxhash64 checksum of the preceding 24 bytes.
const metaRecordSize = 32

// Config groups the parameters needed to construct a Tree.
type Config struct {
	BlockSize    uint32
	LeafStrategy options.BucketStrategy
	NodeStrategy options.BucketStrategy

	Freemap *freemap.Freemap
	FileSet *fileset.FileSet

	Logger *zap.SugaredLogger
}

// frame records one step of a descent from the root: the internal node
// visited, and how the next step's child was reached (via the implicit
// leftmost pointer, or via a specific routing key). Remove uses this to
// find and delete the correct routing entry without a second descent.
type frame struct {
	addr        addr
	viaLeftmost bool
	viaKey      []byte
}

// Tree is a persistent B+-tree backed by a freemap and a file-set.
type Tree struct {
	mu sync.Mutex

	blockSize    uint32
	leafStrategy options.BucketStrategy
	nodeStrategy options.BucketStrategy

	freemap *freemap.Freemap
	fileset *fileset.FileSet
	log     *zap.SugaredLogger

	root   addr
	height int
	count  int64
	maxKey []byte // nil until the first entry is inserted

	pending *WritableValue
}

// New bootstraps a fresh, empty tree: it claims the metadata file, writes
// an initial empty root leaf, and persists the root-metadata record.
func New(ctx context.Context, config *Config) (*Tree, error) {
	if config == nil || config.Freemap == nil || config.FileSet == nil {
		return nil, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "iobtree requires a freemap and a file-set").WithOperation("New")
	}
	if config.BlockSize <= uint32(nodeHeaderSize+bucket.HeaderSize) {
		return nil, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "block size too small to hold node header and bucket header").WithOperation("New")
	}

	log := config.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	t := &Tree{
		blockSize:    config.BlockSize,
		leafStrategy: config.LeafStrategy,
		nodeStrategy: config.NodeStrategy,
		freemap:      config.Freemap,
		fileset:      config.FileSet,
		log:          log.With(zap.String("component", "iobtree")),
	}

	h, err := t.fileset.Create(ctx, metaFileNo)
	if err != nil {
		return nil, err
	}
	h.Unpin()

	rootAddr, err := t.newLeaf(ctx)
	if err != nil {
		return nil, err
	}
	t.root = rootAddr
	t.height = 1

	if err := t.Checkpoint(ctx); err != nil {
		return nil, err
	}
	t.log.Infow("bootstrapped tree", "blockSize", t.blockSize, "metaFile", metaFileNo)
	return t, nil
}

// Open reattaches to a tree previously persisted by Checkpoint: it reads
// the root-metadata record from the metadata file, verifies its xxhash64
// checksum, and populates root, height and count from the decoded record
// instead of bootstrapping a fresh tree. A checksum mismatch — a torn or
// partial write of the record — is reported as ErrorCodeIO, since Open's
// caller has no way to repair it short of recreating the store.
func Open(ctx context.Context, config *Config) (*Tree, error) {
	if config == nil || config.Freemap == nil || config.FileSet == nil {
		return nil, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "iobtree requires a freemap and a file-set").WithOperation("Open")
	}
	if config.BlockSize <= uint32(nodeHeaderSize+bucket.HeaderSize) {
		return nil, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "block size too small to hold node header and bucket header").WithOperation("Open")
	}

	log := config.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	t := &Tree{
		blockSize:    config.BlockSize,
		leafStrategy: config.LeafStrategy,
		nodeStrategy: config.NodeStrategy,
		freemap:      config.Freemap,
		fileset:      config.FileSet,
		log:          log.With(zap.String("component", "iobtree")),
	}

	h, err := t.fileset.Pin(ctx, metaFileNo)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, metaRecordSize)
	if _, err := h.ReadAt(buf, 0); err != nil {
		h.Unpin()
		return nil, err
	}
	h.Unpin()

	wantSum := binary.BigEndian.Uint64(buf[24:32])
	gotSum := xxhash.Sum64(buf[:24])
	if gotSum != wantSum {
		return nil, errors.NewTreeError(nil, errors.ErrorCodeIO, "root metadata record failed checksum verification — a write was likely torn").
			WithOperation("Open")
	}

	t.root = addr{
		file:   int(binary.BigEndian.Uint32(buf[0:4])),
		offset: int64(binary.BigEndian.Uint64(buf[4:12])),
	}
	t.height = int(binary.BigEndian.Uint32(buf[12:16]))
	t.count = int64(binary.BigEndian.Uint64(buf[16:24]))

	t.log.Infow("reopened tree", "blockSize", t.blockSize, "height", t.height, "count", t.count)
	return t, nil
}

// Checkpoint writes the root-metadata record (root address, height,
// entry count) with an xxhash64 checksum over its contents. It issues no
// fsync.
func (t *Tree) Checkpoint(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkpointLocked(ctx)
}

func (t *Tree) checkpointLocked(ctx context.Context) error {
	buf := make([]byte, metaRecordSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(t.root.file))
	binary.BigEndian.PutUint64(buf[4:12], uint64(t.root.offset))
	binary.BigEndian.PutUint32(buf[12:16], uint32(t.height))
	binary.BigEndian.PutUint64(buf[16:24], uint64(t.count))
	sum := xxhash.Sum64(buf[:24])
	binary.BigEndian.PutUint64(buf[24:32], sum)

	h, err := t.fileset.Pin(ctx, metaFileNo)
	if err != nil {
		return err
	}
	defer h.Unpin()
	_, err = h.WriteAt(buf, 0)
	return err
}

func (t *Tree) readBlock(ctx context.Context, a addr) ([]byte, *fileset.Handle, error) {
	h, err := t.fileset.Pin(ctx, a.file)
	if err != nil {
		return nil, nil, err
	}
	block := make([]byte, t.blockSize)
	if _, err := h.ReadAt(block, a.offset); err != nil {
		h.Unpin()
		return nil, nil, err
	}
	return block, h, nil
}

func (t *Tree) writeBlock(h *fileset.Handle, a addr, block []byte) error {
	_, err := h.WriteAt(block, a.offset)
	return err
}

func (t *Tree) newLeaf(ctx context.Context) (addr, error) {
	ext, err := t.freemap.MallocExact(ctx, int64(t.blockSize))
	if err != nil {
		return addr{}, err
	}
	a := addr{file: ext.File, offset: ext.Offset}

	h, err := t.fileset.Pin(ctx, a.file)
	if err != nil {
		return addr{}, err
	}
	defer h.Unpin()

	block := make([]byte, t.blockSize)
	setNodeIsLeaf(block, true)
	setNodeRightSibling(block, addr{}, false)
	if err := bucket.Init(bucketSlice(block), len(bucketSlice(block)), t.leafStrategy); err != nil {
		return addr{}, err
	}
	if err := t.writeBlock(h, a, block); err != nil {
		return addr{}, err
	}
	return a, nil
}

func (t *Tree) newInternal(ctx context.Context) (addr, error) {
	ext, err := t.freemap.MallocExact(ctx, int64(t.blockSize))
	if err != nil {
		return addr{}, err
	}
	a := addr{file: ext.File, offset: ext.Offset}

	h, err := t.fileset.Pin(ctx, a.file)
	if err != nil {
		return addr{}, err
	}
	defer h.Unpin()

	block := make([]byte, t.blockSize)
	setNodeIsLeaf(block, false)
	clearLeftmostChild(block)
	if err := bucket.Init(bucketSlice(block), len(bucketSlice(block)), t.nodeStrategy); err != nil {
		return addr{}, err
	}
	if err := t.writeBlock(h, a, block); err != nil {
		return addr{}, err
	}
	return a, nil
}

func (t *Tree) freeNode(a addr) error {
	return t.freemap.Free(a.file, a.offset, int64(t.blockSize))
}

// descend walks from the root to the leaf that would contain key,
// recording at each internal level how that level's child was reached.
func (t *Tree) descend(ctx context.Context, key []byte) ([]frame, addr, error) {
	var path []frame
	cur := t.root

	for {
		block, h, err := t.readBlock(ctx, cur)
		if err != nil {
			return nil, addr{}, err
		}
		if nodeIsLeaf(block) {
			h.Unpin()
			return path, cur, nil
		}

		lm, _ := leftmostChild(block)
		bs := bucketSlice(block)
		var cursor bucket.Cursor
		viaLeftmost := true
		var viaKey []byte
		child := lm

		for {
			k, off, length, more := bucket.NextTerm(bs, &cursor)
			if !more {
				break
			}
			if bytes.Compare(k, key) <= 0 {
				viaLeftmost = false
				viaKey = append([]byte(nil), k...)
				child = decodeAddr(block[nodeHeaderSize+off : nodeHeaderSize+off+length])
			}
		}

		path = append(path, frame{addr: cur, viaLeftmost: viaLeftmost, viaKey: viaKey})
		h.Unpin()
		cur = child
	}
}

// Size returns the number of entries currently stored.
func (t *Tree) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Stats summarizes tree shape and underlying freemap utilisation.
type Stats struct {
	Height  int
	Count   int64
	Freemap freemap.Stats
}

// Stats reports the tree's current height, entry count, and freemap
// utilisation.
func (t *Tree) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Height: t.height, Count: t.count, Freemap: t.freemap.Stats()}
}
