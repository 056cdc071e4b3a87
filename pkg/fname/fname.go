// Package fname provides filename templating for a file-set's numbered
// files: a zero-padded "prefix_NNNNN" convention. Files are addressed by an
// explicit index handed down by the freemap, not rediscovered from a
// directory listing on restart.
package fname

import (
	"fmt"
	"strconv"
	"strings"
)

// Extension is the fixed suffix for every file-set file.
const Extension = ".blk"

// Generate creates a filename for file number idx within a file-set using
// the given prefix: "prefix_NNNNN.blk", zero-padded to five digits.
//
// A prefix with more than 99,999 files still produces a valid, if longer,
// name — the padding is a readability convention, not a hard limit.
func Generate(prefix string, idx int) string {
	return fmt.Sprintf("%s_%05d%s", prefix, idx, Extension)
}

// ParseIndex extracts the numeric file index from a filename previously
// produced by Generate with the same prefix.
func ParseIndex(filename, prefix string) (int, error) {
	if !strings.HasPrefix(filename, prefix+"_") {
		return 0, fmt.Errorf("filename %q does not start with expected prefix %q", filename, prefix)
	}

	rest := strings.TrimPrefix(filename, prefix+"_")
	rest = strings.TrimSuffix(rest, Extension)
	if rest == "" {
		return 0, fmt.Errorf("filename %q has no index component", filename)
	}

	idx, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("failed to parse index from %q: %w", filename, err)
	}
	if idx < 0 {
		return 0, fmt.Errorf("filename %q has a negative index", filename)
	}

	return idx, nil
}
