package fileset

import "github.com/iamNilotpal/blobtree/pkg/errors"

// Handle is a pinned reference to one open file in a FileSet. It must be
// released with Unpin exactly once.
type Handle struct {
	fileSet *FileSet
	fileNo  int
}

// FileNo returns the file number this handle refers to.
func (h *Handle) FileNo() int { return h.fileNo }

// ReadAt reads len(buf) bytes starting at off.
func (h *Handle) ReadAt(buf []byte, off int64) (int, error) {
	h.fileSet.mu.Lock()
	e, ok := h.fileSet.entries[h.fileNo]
	h.fileSet.mu.Unlock()
	if !ok || e.file == nil {
		return 0, errors.NewKeyNotFoundError("ReadAt", h.fileSet.Name(h.fileNo))
	}
	return e.file.ReadAt(buf, off)
}

// WriteAt writes buf starting at off.
func (h *Handle) WriteAt(buf []byte, off int64) (int, error) {
	h.fileSet.mu.Lock()
	e, ok := h.fileSet.entries[h.fileNo]
	h.fileSet.mu.Unlock()
	if !ok || e.file == nil {
		return 0, errors.NewKeyNotFoundError("WriteAt", h.fileSet.Name(h.fileNo))
	}
	return e.file.WriteAt(buf, off)
}

// Sync flushes the underlying file to stable storage.
func (h *Handle) Sync() error {
	h.fileSet.mu.Lock()
	e, ok := h.fileSet.entries[h.fileNo]
	h.fileSet.mu.Unlock()
	if !ok || e.file == nil {
		return errors.NewKeyNotFoundError("Sync", h.fileSet.Name(h.fileNo))
	}
	return e.file.Sync()
}

// Unpin releases this handle's pin on its file.
func (h *Handle) Unpin() {
	h.fileSet.unpin(h.fileNo)
}
