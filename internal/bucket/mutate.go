package bucket

import (
	"sort"

	"github.com/iamNilotpal/blobtree/pkg/errors"
	"github.com/iamNilotpal/blobtree/pkg/options"
)

// record is an in-memory decode of one bucket entry, used to perform a
// mutation logically and then re-render the whole block in one pass. This
// trades the classical shift-in-place memmove approach for a simpler
// decode/rebuild that is easier to get exactly right for a fixed-size,
// no-overlap-allowed block.
type record struct {
	key   []byte
	value []byte
}

func decode(block []byte) []record {
	pairs := All(block)
	out := make([]record, len(pairs))
	for i, p := range pairs {
		out[i] = record{key: p.Key, value: p.Value}
	}
	return out
}

func render(block []byte, strategy options.BucketStrategy, records []record) error {
	if strategy == options.FlatSorted {
		sort.Slice(records, func(i, j int) bool {
			return bytesCompare(records[i].key, records[j].key) < 0
		})
	}

	size := len(block)
	n := len(records)

	for i := range block {
		block[i] = 0
	}
	writeU32(block, offEntries, uint32(n))
	block[offStrategy] = byte(strategy)

	valueCursor := HeaderSize + n*EntrySize
	stringCursor := size

	for i, rec := range records {
		valueOff := valueCursor
		valueCursor += len(rec.value)

		stringCursor -= len(rec.key)
		stringOff := stringCursor

		base := HeaderSize + i*EntrySize
		writeU32(block, base+0, uint32(stringOff))
		writeU32(block, base+4, uint32(len(rec.key)))
		writeU32(block, base+8, uint32(valueOff))
		writeU32(block, base+12, uint32(len(rec.value)))

		copy(block[valueOff:valueOff+len(rec.value)], rec.value)
		copy(block[stringOff:stringOff+len(rec.key)], rec.key)
	}

	writeU32(block, offValueHeapBottom, uint32(valueCursor))
	writeU32(block, offStringHeapTop, uint32(stringCursor))

	if valueCursor > stringCursor {
		return errors.NewTreeError(nil, errors.ErrorCodeInvalid, "bucket render overflowed block bounds").WithOperation("render")
	}
	return nil
}

func usedBytes(records []record) int {
	used := HeaderSize
	for _, rec := range records {
		used += EntrySize + len(rec.key) + len(rec.value)
	}
	return used
}

// Alloc reserves space for a new entry with the given key and value
// length, returning the offset within block where the caller should write
// the value bytes. tooBig is true if the entry could never fit even an
// empty bucket of this size, signalling to the caller that splitting a
// leaf would not help.
func Alloc(block []byte, strategy options.BucketStrategy, key []byte, valueLen int) (valueOff int, tooBig bool, err error) {
	if _, found := locate(block, strategy, key); found {
		return 0, false, errors.NewKeyExistsError("Alloc", string(key))
	}

	needed := EntrySize + len(key) + valueLen
	capacity := len(block) - HeaderSize
	if needed > capacity {
		return 0, true, errors.NewTooBigError("Alloc", string(key), len(key)+valueLen, len(block))
	}

	records := decode(block)
	free := len(block) - usedBytes(records)
	if needed > free {
		return 0, false, errors.NewNoSpaceError("Alloc", needed)
	}

	records = append(records, record{
		key:   append([]byte(nil), key...),
		value: make([]byte, valueLen),
	})

	if err := render(block, strategy, records); err != nil {
		return 0, false, err
	}

	idx, _ := locate(block, strategy, key)
	r := entryAt(block, idx)
	return int(r.valueOff), false, nil
}

// Realloc grows or shrinks the value slot of an existing entry in place,
// preserving as many leading bytes of the old value as still fit. tooBig
// is true if the new length could never fit even an empty bucket.
func Realloc(block []byte, strategy options.BucketStrategy, key []byte, newValueLen int) (tooBig bool, err error) {
	idx, found := locate(block, strategy, key)
	if !found {
		return false, errors.NewKeyNotFoundError("Realloc", string(key))
	}

	records := decode(block)
	old := records[idx]
	delta := newValueLen - len(old.value)

	if delta > 0 {
		free := len(block) - usedBytes(records)
		if delta > free {
			capacity := len(block) - HeaderSize
			needed := EntrySize + len(key) + newValueLen
			return needed > capacity, errors.NewNoSpaceError("Realloc", delta)
		}
	}

	grown := make([]byte, newValueLen)
	copy(grown, old.value)
	records[idx].value = grown

	if err := render(block, strategy, records); err != nil {
		return false, err
	}
	return false, nil
}

// Remove deletes key from the block, compacting the heaps. ok is false if
// key was not present.
func Remove(block []byte, strategy options.BucketStrategy, key []byte) (ok bool, err error) {
	idx, found := locate(block, strategy, key)
	if !found {
		return false, nil
	}

	records := decode(block)
	records = append(records[:idx], records[idx+1:]...)

	if err := render(block, strategy, records); err != nil {
		return false, err
	}
	return true, nil
}
