// Package bucket packs a variable set of (key, value-bytes) entries into a
// fixed-size block with no dynamic allocation outside the block itself. A
// bucket is the node representation the iobtree persists for both leaves
// and internal routing nodes.
//
// On-disk layout (network byte order throughout):
//
//	[0, H)                    header: u32 entries, u32 valueHeapBottom,
//	                          u32 stringHeapTop, u8 strategy, 3 bytes padding
//	[H, H+entries*E)          entry table: u32 stringOff, u32 stringLen,
//	                          u32 valueOff, u32 valueLen per entry
//	[H+entries*E, valueHeapBottom)   value bytes, growing upward
//	[valueHeapBottom, stringHeapTop) free gap
//	[stringHeapTop, B)        key bytes, growing downward from B
package bucket

import (
	"encoding/binary"

	"github.com/iamNilotpal/blobtree/pkg/errors"
	"github.com/iamNilotpal/blobtree/pkg/options"
)

const (
	// HeaderSize is H, the fixed header region at the start of every block.
	HeaderSize = 16
	// EntrySize is E, the fixed size of one entry-table record.
	EntrySize = 16
)

const (
	offEntries         = 0
	offValueHeapBottom = 4
	offStringHeapTop   = 8
	offStrategy        = 12
)

func readU32(block []byte, off int) uint32 {
	return binary.BigEndian.Uint32(block[off : off+4])
}

func writeU32(block []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(block[off:off+4], v)
}

// Entries returns the number of entries currently stored in the block.
func Entries(block []byte) int {
	return int(readU32(block, offEntries))
}

// ValueHeapBottom returns the current upper bound of the used value region.
func ValueHeapBottom(block []byte) int {
	return int(readU32(block, offValueHeapBottom))
}

// StringHeapTop returns the current lower bound of the used key region.
func StringHeapTop(block []byte) int {
	return int(readU32(block, offStringHeapTop))
}

// Strategy returns the packing strategy this block was initialized with.
func Strategy(block []byte) options.BucketStrategy {
	return options.BucketStrategy(block[offStrategy])
}

// Init writes an empty bucket header into block, which must be exactly
// size bytes long.
func Init(block []byte, size int, strategy options.BucketStrategy) error {
	if len(block) != size {
		return errors.NewTreeError(nil, errors.ErrorCodeInvalid, "block length does not match declared size").WithOperation("Init")
	}
	if size <= HeaderSize {
		return errors.NewTreeError(nil, errors.ErrorCodeInvalid, "block size too small to hold a header").WithOperation("Init")
	}

	for i := range block {
		block[i] = 0
	}
	writeU32(block, offEntries, 0)
	writeU32(block, offValueHeapBottom, HeaderSize)
	writeU32(block, offStringHeapTop, uint32(size))
	block[offStrategy] = byte(strategy)
	return nil
}

type entryTableRecord struct {
	stringOff uint32
	stringLen uint32
	valueOff  uint32
	valueLen  uint32
}

func entryAt(block []byte, i int) entryTableRecord {
	base := HeaderSize + i*EntrySize
	return entryTableRecord{
		stringOff: readU32(block, base+0),
		stringLen: readU32(block, base+4),
		valueOff:  readU32(block, base+8),
		valueLen:  readU32(block, base+12),
	}
}

func keyAt(block []byte, r entryTableRecord) []byte {
	return block[r.stringOff : r.stringOff+r.stringLen]
}

// locate finds the entry-table index for key. For FLAT_SORTED it binary
// searches the (already ordered) table; for FLAT_UNSORTED it scans
// linearly. found is false if key is absent, in which case idx is the
// position a FLAT_SORTED insert would occupy (meaningless for unsorted).
func locate(block []byte, strategy options.BucketStrategy, key []byte) (idx int, found bool) {
	n := Entries(block)

	if strategy == options.FlatUnsorted {
		for i := 0; i < n; i++ {
			if bytesEqual(keyAt(block, entryAt(block, i)), key) {
				return i, true
			}
		}
		return n, false
	}

	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		k := keyAt(block, entryAt(block, mid))
		switch bytesCompare(k, key) {
		case 0:
			return mid, true
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

func bytesEqual(a, b []byte) bool {
	return bytesCompare(a, b) == 0
}

func bytesCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Find locates key, returning the offset and length of its value bytes
// within block. ok is false if key is absent.
func Find(block []byte, strategy options.BucketStrategy, key []byte) (valueOff, valueLen int, ok bool) {
	idx, found := locate(block, strategy, key)
	if !found {
		return 0, 0, false
	}
	r := entryAt(block, idx)
	return int(r.valueOff), int(r.valueLen), true
}

// Cursor is an externally-held iteration state for NextTerm. Its zero
// value starts iteration from the beginning.
type Cursor struct {
	index int
}

// NextTerm walks the entry table starting from cursor's position,
// returning the next key and value location. ok is false once every entry
// has been visited; the cursor may then be reset to {} to restart.
// Entry-table order is ascending key order for FLAT_SORTED and insertion
// order for FLAT_UNSORTED.
func NextTerm(block []byte, cursor *Cursor) (key []byte, valueOff, valueLen int, ok bool) {
	n := Entries(block)
	if cursor.index >= n {
		return nil, 0, 0, false
	}
	r := entryAt(block, cursor.index)
	cursor.index++
	return keyAt(block, r), int(r.valueOff), int(r.valueLen), true
}

// Pair is one decoded (key, value) entry returned by All.
type Pair struct {
	Key   []byte
	Value []byte
}

// All decodes every entry in block into freshly allocated byte slices, in
// entry-table order. The iobtree uses this to redistribute a node's
// contents across a split without depending on bucket's internal layout.
func All(block []byte) []Pair {
	n := Entries(block)
	out := make([]Pair, n)
	for i := 0; i < n; i++ {
		r := entryAt(block, i)
		out[i] = Pair{
			Key:   append([]byte(nil), keyAt(block, r)...),
			Value: append([]byte(nil), block[r.valueOff:r.valueOff+r.valueLen]...),
		}
	}
	return out
}

// Stat reports the bucket's space accounting. Overhead + Utilised +
// StringBytes + Unused always sums to the block size.
type Stat struct {
	Entries     int
	Utilised    int // value bytes
	StringBytes int // key bytes
	Overhead    int // header + entry table
	Unused      int // free gap
}

// Stats computes the current space-usage breakdown of block.
func Stats(block []byte) Stat {
	n := Entries(block)
	size := len(block)
	overhead := HeaderSize + n*EntrySize
	utilised := ValueHeapBottom(block) - overhead
	stringBytes := size - StringHeapTop(block)
	unused := StringHeapTop(block) - ValueHeapBottom(block)
	return Stat{
		Entries:     n,
		Utilised:    utilised,
		StringBytes: stringBytes,
		Overhead:    overhead,
		Unused:      unused,
	}
}
