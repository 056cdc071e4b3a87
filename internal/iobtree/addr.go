package iobtree

import "encoding/binary"

// addr identifies a block within a file-set: a file number and a byte
// offset into that file.
type addr struct {
	file   int
	offset int64
}

// addrSize is the on-disk width of an encoded addr: a child pointer
// stored as a routing entry's value in an internal node.
const addrSize = 12

func encodeAddr(a addr) []byte {
	buf := make([]byte, addrSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(a.file))
	binary.BigEndian.PutUint64(buf[4:12], uint64(a.offset))
	return buf
}

func decodeAddr(b []byte) addr {
	return addr{
		file:   int(binary.BigEndian.Uint32(b[0:4])),
		offset: int64(binary.BigEndian.Uint64(b[4:12])),
	}
}

// nodeHeaderSize is the fixed region every persisted block reserves ahead
// of its bucket encoding, carrying metadata the bucket layout has no room
// for: whether this block is a leaf, its right-sibling pointer (leaves
// only, for ordered iteration across leaf boundaries) and its leftmost
// child pointer (internal nodes only, for the implicit "less than every
// routing key" child).
const nodeHeaderSize = 32

const (
	offIsLeaf           = 0
	offRightSibFile     = 4
	offRightSibOffset   = 8
	offLeftmostChFile   = 16
	offLeftmostChOffset = 20
)

func nodeIsLeaf(block []byte) bool { return block[offIsLeaf] == 1 }

func setNodeIsLeaf(block []byte, leaf bool) {
	if leaf {
		block[offIsLeaf] = 1
	} else {
		block[offIsLeaf] = 0
	}
}

// A negative file number marks "no pointer"; file numbers are otherwise
// always >= 0.
const noPointer = int32(-1)

func nodeRightSibling(block []byte) (addr, bool) {
	f := int32(binary.BigEndian.Uint32(block[offRightSibFile : offRightSibFile+4]))
	if f == noPointer {
		return addr{}, false
	}
	off := int64(binary.BigEndian.Uint64(block[offRightSibOffset : offRightSibOffset+8]))
	return addr{file: int(f), offset: off}, true
}

func setNodeRightSibling(block []byte, a addr, has bool) {
	if !has {
		binary.BigEndian.PutUint32(block[offRightSibFile:offRightSibFile+4], uint32(noPointer))
		return
	}
	binary.BigEndian.PutUint32(block[offRightSibFile:offRightSibFile+4], uint32(int32(a.file)))
	binary.BigEndian.PutUint64(block[offRightSibOffset:offRightSibOffset+8], uint64(a.offset))
}

func leftmostChild(block []byte) (addr, bool) {
	f := int32(binary.BigEndian.Uint32(block[offLeftmostChFile : offLeftmostChFile+4]))
	if f == noPointer {
		return addr{}, false
	}
	off := int64(binary.BigEndian.Uint64(block[offLeftmostChOffset : offLeftmostChOffset+8]))
	return addr{file: int(f), offset: off}, true
}

func setLeftmostChild(block []byte, a addr) {
	binary.BigEndian.PutUint32(block[offLeftmostChFile:offLeftmostChFile+4], uint32(int32(a.file)))
	binary.BigEndian.PutUint64(block[offLeftmostChOffset:offLeftmostChOffset+8], uint64(a.offset))
}

func clearLeftmostChild(block []byte) {
	binary.BigEndian.PutUint32(block[offLeftmostChFile:offLeftmostChFile+4], uint32(noPointer))
}

func bucketSlice(block []byte) []byte { return block[nodeHeaderSize:] }
