package freemap

// Extent is a contiguous free (or just-granted) byte range within one file
// of a file-set. Allocation never spans files: every extent lives entirely
// inside a single file number.
type Extent struct {
	File   int
	Offset int64
	Length int64
}

// locationKey orders extents by (file, offset), used for first-fit scans
// and for locating the extent immediately adjacent to an existing
// allocation (realloc's "grow in place" check).
type locationKey struct {
	file   int
	offset int64
}

func locationCmp(a, b locationKey) int {
	if a.file != b.file {
		return a.file - b.file
	}
	switch {
	case a.offset < b.offset:
		return -1
	case a.offset > b.offset:
		return 1
	default:
		return 0
	}
}

// lengthKey orders extents by length first, then by (file, offset) to
// produce a deterministic tie-break: best-fit's ceiling search picks the
// earliest extent among equal lengths, worst-fit's Max picks the latest.
type lengthKey struct {
	length int64
	file   int
	offset int64
}

func lengthCmp(a, b lengthKey) int {
	switch {
	case a.length < b.length:
		return -1
	case a.length > b.length:
		return 1
	}
	if a.file != b.file {
		return a.file - b.file
	}
	switch {
	case a.offset < b.offset:
		return -1
	case a.offset > b.offset:
		return 1
	default:
		return 0
	}
}
