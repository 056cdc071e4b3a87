// Package fileset supplies pinned file handles addressed by a numeric
// index within a directory, creating files on first access and evicting
// unpinned handles to stay within an open-file budget. The freemap grows
// into a FileSet whenever no existing extent satisfies a request.
package fileset

import (
	"container/list"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/iamNilotpal/blobtree/pkg/errors"
	"github.com/iamNilotpal/blobtree/pkg/filesys"
	"github.com/iamNilotpal/blobtree/pkg/fname"
	"go.uber.org/zap"
)

// Config groups the parameters needed to construct a FileSet.
type Config struct {
	// DataDir is the store's base directory; files live in
	// filepath.Join(DataDir, Directory).
	DataDir   string
	Directory string
	Prefix    string

	// Capacity is the maximum size handed out for every newly created file.
	Capacity int64

	// MaxOpenFiles bounds how many files may be open (pinned or not) at
	// once before an unpinned one is evicted.
	MaxOpenFiles int

	Logger *zap.SugaredLogger
}

type entry struct {
	fileNo   int
	file     *os.File
	pinCount int
	elem     *list.Element // position in the LRU list when pinCount == 0
}

// FileSet manages numbered files under one directory.
type FileSet struct {
	mu sync.Mutex

	dir      string
	prefix   string
	capacity int64
	maxOpen  int
	log      *zap.SugaredLogger

	nextIndex int
	entries   map[int]*entry
	lru       *list.List // unpinned entries, front = least recently used
}

// New creates the file-set's backing directory if needed and returns an
// empty FileSet.
func New(config *Config) (*FileSet, error) {
	if config == nil || config.Capacity <= 0 || config.MaxOpenFiles <= 0 {
		return nil, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "fileset requires positive capacity and open-file budget").WithOperation("New")
	}

	log := config.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	dir := filepath.Join(config.DataDir, config.Directory)
	if err := filesys.CreateDir(dir, 0755, true); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, dir)
	}

	return &FileSet{
		dir:      dir,
		prefix:   config.Prefix,
		capacity: config.Capacity,
		maxOpen:  config.MaxOpenFiles,
		log:      log.With(zap.String("component", "fileset"), zap.String("prefix", config.Prefix)),
		entries:  make(map[int]*entry),
		lru:      list.New(),
	}, nil
}

// Name renders the filename for file number i.
func (fs *FileSet) Name(i int) string {
	return fname.Generate(fs.prefix, i)
}

func (fs *FileSet) path(i int) string {
	return filepath.Join(fs.dir, fs.Name(i))
}

// Create opens file i, creating it on disk if this is its first access,
// and pins it. The caller must Unpin the returned handle when done.
func (fs *FileSet) Create(ctx context.Context, i int) (*Handle, error) {
	return fs.open(ctx, i, true)
}

// Pin opens an already-created file i and pins it. It fails with
// ErrorCodeNotFound if file i has never been created.
func (fs *FileSet) Pin(ctx context.Context, i int) (*Handle, error) {
	return fs.open(ctx, i, false)
}

func (fs *FileSet) open(ctx context.Context, i int, create bool) (*Handle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if e, ok := fs.entries[i]; ok {
		if e.file != nil {
			fs.acquire(e)
			return &Handle{fileSet: fs, fileNo: i}, nil
		}
		// Known but currently evicted: reopen.
		f, err := os.OpenFile(fs.path(i), os.O_RDWR, 0644)
		if err != nil {
			return nil, errors.ClassifyFileOpenError(err, fs.path(i), fs.Name(i))
		}
		if err := fs.makeRoom(); err != nil {
			_ = f.Close()
			return nil, err
		}
		e.file = f
		fs.acquire(e)
		return &Handle{fileSet: fs, fileNo: i}, nil
	}

	if !create {
		return nil, errors.NewKeyNotFoundError("Pin", fs.Name(i)).WithOperation("Pin")
	}

	if err := fs.makeRoom(); err != nil {
		return nil, err
	}

	flags := os.O_CREATE | os.O_RDWR
	f, err := os.OpenFile(fs.path(i), flags, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, fs.path(i), fs.Name(i))
	}

	e := &entry{fileNo: i, file: f, pinCount: 1}
	fs.entries[i] = e
	if i >= fs.nextIndex {
		fs.nextIndex = i + 1
	}

	fs.log.Infow("created file", "fileNo", i, "capacity", fs.capacity)
	return &Handle{fileSet: fs, fileNo: i}, nil
}

// acquire pins an already-open entry, removing it from the LRU list if it
// was sitting there unpinned.
func (fs *FileSet) acquire(e *entry) {
	if e.pinCount == 0 && e.elem != nil {
		fs.lru.Remove(e.elem)
		e.elem = nil
	}
	e.pinCount++
}

// makeRoom evicts unpinned files (closing their handles) until the number
// of currently-open files is below the budget. It fails with
// ErrorCodeBusy if the budget is already exhausted by pinned files alone.
func (fs *FileSet) makeRoom() error {
	open := 0
	for _, e := range fs.entries {
		if e.file != nil {
			open++
		}
	}
	for open >= fs.maxOpen {
		front := fs.lru.Front()
		if front == nil {
			return errors.NewTreeError(nil, errors.ErrorCodeBusy, "open-file budget exhausted and no handle could be evicted").WithOperation("makeRoom")
		}
		e := front.Value.(*entry)
		fs.lru.Remove(front)
		e.elem = nil
		_ = e.file.Close()
		e.file = nil
		open--
	}
	return nil
}

// unpin releases one pin on file i. Once the last pin is released the
// handle becomes eligible for eviction, but its file descriptor stays open
// until makeRoom actually needs the slot.
func (fs *FileSet) unpin(i int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	e, ok := fs.entries[i]
	if !ok {
		return
	}
	e.pinCount--
	if e.pinCount <= 0 {
		e.pinCount = 0
		e.elem = fs.lru.PushBack(e)
	}
}

// Unlink removes file i's backing store entirely. The file must not be
// pinned.
func (fs *FileSet) Unlink(i int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	e, ok := fs.entries[i]
	if ok {
		if e.pinCount > 0 {
			return errors.NewTreeError(nil, errors.ErrorCodeBusy, "cannot unlink a pinned file").WithOperation("Unlink")
		}
		if e.file != nil {
			if e.elem != nil {
				fs.lru.Remove(e.elem)
			}
			_ = e.file.Close()
		}
		delete(fs.entries, i)
	}

	if err := os.Remove(fs.path(i)); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to unlink file").WithFileName(fs.Name(i)).WithPath(fs.dir)
	}
	return nil
}

// GrowFile implements freemap.Grower: it creates the next sequentially
// numbered file and returns its configured capacity.
func (fs *FileSet) GrowFile(ctx context.Context) (fileNo int, maxSize int64, err error) {
	fs.mu.Lock()
	i := fs.nextIndex
	fs.mu.Unlock()

	h, err := fs.Create(ctx, i)
	if err != nil {
		return 0, 0, err
	}
	h.Unpin()
	return i, fs.capacity, nil
}

// Close closes every currently-open file handle. It fails if any file is
// still pinned.
func (fs *FileSet) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, e := range fs.entries {
		if e.pinCount > 0 {
			return errors.NewTreeError(nil, errors.ErrorCodeBusy, "cannot close file-set with pinned files outstanding").WithOperation("Close")
		}
	}
	for _, e := range fs.entries {
		if e.file != nil {
			_ = e.file.Close()
			e.file = nil
		}
	}
	return nil
}
