// Package freemap allocates and frees byte ranges across a file-set. It
// maintains two red-black tree indices over the same set of free extents —
// one ordered by (file, offset) for first-fit scans, one ordered by length
// for best/worst-fit — and grows the file-set on exhaustion via a caller
// supplied factory.
package freemap

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/iamNilotpal/blobtree/internal/rbtree"
	"github.com/iamNilotpal/blobtree/pkg/errors"
	"github.com/iamNilotpal/blobtree/pkg/options"
	"go.uber.org/zap"
)

// Grower supplies new files to the freemap when no existing extent can
// satisfy a request. It mirrors the file-set's create-on-demand factory:
// the freemap never creates files itself, only asks for one and is told its
// capacity.
type Grower interface {
	GrowFile(ctx context.Context) (fileNo int, maxSize int64, err error)
}

// Config groups the parameters needed to construct a Freemap, following the
// same Config-struct-plus-New convention used across this module.
type Config struct {
	Strategy    options.FreemapStrategy
	AppendSlack uint32
	Grower      Grower
	Logger      *zap.SugaredLogger
}

// Freemap tracks free byte ranges across a file-set and grants or reclaims
// them on request. Every method takes its single mutex, so calls are
// serialized: mutating methods hold the write lock (including across a
// Grower call), while the read-mostly Stats/String paths take only the
// read lock.
type Freemap struct {
	mu sync.RWMutex

	strategy    options.FreemapStrategy
	appendSlack int64
	grower      Grower
	log         *zap.SugaredLogger

	byLocation *rbtree.Tree[locationKey, int64]
	byLength   *rbtree.Tree[lengthKey, int64]

	activeWaste map[locationKey]int64

	freeBytes     int64
	wastedBytes   int64
	totalCapacity int64
}

// New constructs an empty Freemap. It holds no extents until Malloc first
// triggers a Grower call, or a caller seeds it via Free.
func New(config *Config) (*Freemap, error) {
	if config == nil || config.Grower == nil {
		return nil, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "freemap requires a non-nil Grower").WithOperation("New")
	}

	log := config.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Freemap{
		strategy:    config.Strategy,
		appendSlack: int64(config.AppendSlack),
		grower:      config.Grower,
		log:         log.With(zap.String("component", "freemap")),
		byLocation:  rbtree.New[locationKey, int64](locationCmp),
		byLength:    rbtree.New[lengthKey, int64](lengthCmp),
		activeWaste: make(map[locationKey]int64),
	}, nil
}

// insert adds a free extent into both indices.
func (f *Freemap) insert(e Extent) {
	loc := locationKey{file: e.File, offset: e.Offset}
	_ = f.byLocation.Insert(loc, e.Length)
	_ = f.byLength.Insert(lengthKey{length: e.Length, file: e.File, offset: e.Offset}, e.Length)
	f.freeBytes += e.Length
}

// removeByLocation deletes the extent starting at loc from both indices,
// returning its length and whether it was present.
func (f *Freemap) removeByLocation(loc locationKey) (int64, bool) {
	length, ok := f.byLocation.Find(loc)
	if !ok {
		return 0, false
	}
	_ = f.byLocation.Remove(loc)
	_ = f.byLength.Remove(lengthKey{length: length, file: loc.file, offset: loc.offset})
	f.freeBytes -= length
	return length, true
}

// grant computes how much of a candidate extent of length avail to hand
// out for a request of wanted bytes, honoring append slack unless exact is
// set. It returns the granted length, the length of any remainder extent
// left behind (0 if the whole extent was consumed), and the waste booked
// against the grant.
func (f *Freemap) grant(avail, wanted int64, exact bool) (granted, remainder, waste int64) {
	if exact {
		return wanted, avail - wanted, 0
	}
	if avail-wanted <= f.appendSlack {
		return avail, 0, avail - wanted
	}
	return wanted, avail - wanted, 0
}

// findFit locates a free extent of at least wanted bytes per the
// configured strategy, without consuming it.
func (f *Freemap) findFit(wanted int64) (Extent, bool) {
	switch f.strategy {
	case options.BestFit:
		k, length, ok := f.byLength.FindCeil(lengthKey{length: wanted})
		if !ok {
			return Extent{}, false
		}
		return Extent{File: k.file, Offset: k.offset, Length: length}, true

	case options.WorstFit:
		k, length, ok := f.byLength.Max()
		if !ok || length < wanted {
			return Extent{}, false
		}
		return Extent{File: k.file, Offset: k.offset, Length: length}, true

	default: // FirstFit
		it := f.byLocation.Iter(rbtree.InOrder, false)
		for {
			k, length, ok, err := it.Next()
			if err != nil || !ok {
				return Extent{}, false
			}
			if length >= wanted {
				return Extent{File: k.file, Offset: k.offset, Length: length}, true
			}
		}
	}
}

// Malloc returns an extent of at least wanted bytes. When exact is false
// the grant may exceed wanted by up to the configured append slack,
// booking the overage as waste. If no extent is large enough, Malloc asks
// the Grower for a new file and retries until one succeeds large enough or
// the Grower refuses, in which case it fails with ErrorCodeNoSpace.
func (f *Freemap) Malloc(ctx context.Context, wanted int64) (Extent, error) {
	return f.malloc(ctx, wanted, false)
}

// MallocExact is Malloc with EXACT semantics: the grant is always exactly
// wanted bytes and any remainder stays in the free pool.
func (f *Freemap) MallocExact(ctx context.Context, wanted int64) (Extent, error) {
	return f.malloc(ctx, wanted, true)
}

func (f *Freemap) malloc(ctx context.Context, wanted int64, exact bool) (Extent, error) {
	if wanted <= 0 {
		return Extent{}, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "wanted must be positive").WithOperation("Malloc")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		cand, ok := f.findFit(wanted)
		if ok {
			return f.grantExtent(cand, wanted, exact), nil
		}

		fileNo, maxSize, err := f.grower.GrowFile(ctx)
		if err != nil {
			return Extent{}, errors.NewNoSpaceError("Malloc", int(wanted)).WithDetail("cause", err.Error())
		}
		f.totalCapacity += maxSize
		f.insert(Extent{File: fileNo, Offset: 0, Length: maxSize})
	}
}

func (f *Freemap) grantExtent(cand Extent, wanted int64, exact bool) Extent {
	loc := locationKey{file: cand.File, offset: cand.Offset}
	length, _ := f.removeByLocation(loc)

	granted, remainder, waste := f.grant(length, wanted, exact)
	if remainder > 0 {
		f.insert(Extent{File: cand.File, Offset: cand.Offset + granted, Length: remainder})
	}

	grantedLoc := locationKey{file: cand.File, offset: cand.Offset}
	if waste > 0 {
		f.activeWaste[grantedLoc] = waste
		f.wastedBytes += waste
	}

	return Extent{File: cand.File, Offset: cand.Offset, Length: granted}
}

// MallocAt allocates at a specific (file, offset), succeeding only if a
// free extent starts exactly there with sufficient length. Callers use
// this to re-claim a block they remember just having freed.
func (f *Freemap) MallocAt(file int, offset, wanted int64, exact bool) (Extent, error) {
	if wanted <= 0 {
		return Extent{}, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "wanted must be positive").WithOperation("MallocAt")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	loc := locationKey{file: file, offset: offset}
	length, ok := f.byLocation.Find(loc)
	if !ok || length < wanted {
		return Extent{}, errors.NewNoSpaceError("MallocAt", int(wanted)).WithBlockAddr(file, offset)
	}

	return f.grantExtent(Extent{File: file, Offset: offset, Length: length}, wanted, exact), nil
}

// Realloc extends the allocation ending at (file, offset+currentLen) by at
// least extra bytes, using the free extent immediately following it. It
// never moves the allocation. Fails with ErrorCodeNoSpace if no adjacent
// free extent has enough room.
func (f *Freemap) Realloc(file int, offset, currentLen, extra int64, exact bool) (grantedExtra int64, err error) {
	if extra <= 0 {
		return 0, errors.NewTreeError(nil, errors.ErrorCodeInvalid, "extra must be positive").WithOperation("Realloc")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	adjLoc := locationKey{file: file, offset: offset + currentLen}
	length, ok := f.byLocation.Find(adjLoc)
	if !ok || length < extra {
		return 0, errors.NewNoSpaceError("Realloc", int(extra)).WithBlockAddr(file, offset+currentLen)
	}

	granted := f.grantExtent(Extent{File: file, Offset: offset + currentLen, Length: length}, extra, exact)
	return granted.Length, nil
}

// Free returns the extent back to the pool, coalescing with any
// immediately-adjacent free extents so that no two adjacent free extents
// ever coexist.
func (f *Freemap) Free(file int, offset, length int64) error {
	if length <= 0 {
		return errors.NewTreeError(nil, errors.ErrorCodeInvalid, "length must be positive").WithOperation("Free")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	loc := locationKey{file: file, offset: offset}
	if w, ok := f.activeWaste[loc]; ok {
		f.wastedBytes -= w
		delete(f.activeWaste, loc)
	}

	start, end := offset, offset+length

	// Coalesce with the extent immediately preceding this one, if any.
	if before, beforeLen, ok := f.precedingExtent(file, offset); ok {
		if before.offset+beforeLen == offset {
			f.removeByLocation(before)
			start = before.offset
		}
	}

	// Coalesce with the extent immediately following this one, if any.
	if afterLen, ok := f.byLocation.Find(locationKey{file: file, offset: end}); ok {
		f.removeByLocation(locationKey{file: file, offset: end})
		end += afterLen
	}

	f.insert(Extent{File: file, Offset: start, Length: end - start})
	return nil
}

// precedingExtent finds the free extent in the same file with the largest
// offset strictly less than offset, used by Free's backward coalesce.
func (f *Freemap) precedingExtent(file int, offset int64) (locationKey, int64, bool) {
	k, length, ok := f.byLocation.FindNear(locationKey{file: file, offset: offset - 1})
	if !ok || k.file != file {
		return locationKey{}, 0, false
	}
	return k, length, true
}

// Stats reports the freemap's current counters.
type Stats struct {
	FreeBytes     int64
	WastedBytes   int64
	ExtentCount   int
	TotalCapacity int64
	Utilisation   float64
}

// Stats returns a snapshot of the freemap's counters.
func (f *Freemap) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var utilisation float64
	if f.totalCapacity > 0 {
		utilisation = 1 - (float64(f.freeBytes) / float64(f.totalCapacity))
	}

	return Stats{
		FreeBytes:     f.freeBytes,
		WastedBytes:   f.wastedBytes,
		ExtentCount:   f.byLocation.Size(),
		TotalCapacity: f.totalCapacity,
		Utilisation:   utilisation,
	}
}

// String enumerates every free extent in (file, offset) order, one per
// line, for debugging and operational dumps.
func (f *Freemap) String() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var b strings.Builder
	it := f.byLocation.Iter(rbtree.InOrder, false)
	for {
		k, length, ok, err := it.Next()
		if err != nil || !ok {
			break
		}
		fmt.Fprintf(&b, "file=%d offset=%d length=%d\n", k.file, k.offset, length)
	}
	return b.String()
}
