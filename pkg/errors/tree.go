package errors

// TreeError provides specialized error handling for freemap/bucket/iobtree
// operations. It follows the same embedding-plus-fluent-override shape as
// StorageError and (the now-retired) IndexError: enough structured context
// to let a caller decide whether a failure is retryable (ErrorCodeNoSpace)
// or terminal (ErrorCodeTooBig) without parsing a message string.
type TreeError struct {
	*baseError

	// key identifies which key was being located, inserted or removed when
	// the error occurred.
	key string

	// operation names the iobtree/freemap/bucket operation in progress,
	// e.g. "Alloc", "Split", "Malloc", "Realloc".
	operation string

	// fileNo and offset identify the block or extent involved, when known.
	fileNo int
	offset int64

	// tooBig mirrors the bucket/iobtree "too_big" output parameter: true
	// means retrying (even after a split) cannot help because the entry
	// alone exceeds a single block's capacity.
	tooBig bool
}

// NewTreeError creates a new tree-specific error with the provided context.
func NewTreeError(err error, code ErrorCode, msg string) *TreeError {
	return &TreeError{baseError: NewBaseError(err, code, msg)}
}

// Override base error methods to return *TreeError instead of *baseError.

// WithMessage updates the error message while maintaining the TreeError type.
func (te *TreeError) WithMessage(msg string) *TreeError {
	te.baseError.WithMessage(msg)
	return te
}

// WithCode sets the error code while preserving the TreeError type.
func (te *TreeError) WithCode(code ErrorCode) *TreeError {
	te.baseError.WithCode(code)
	return te
}

// WithDetail adds contextual information while maintaining the TreeError type.
func (te *TreeError) WithDetail(key string, value any) *TreeError {
	te.baseError.WithDetail(key, value)
	return te
}

// WithKey records which key was being processed when the error occurred.
func (te *TreeError) WithKey(key string) *TreeError {
	te.key = key
	return te
}

// WithOperation records which operation was being performed.
func (te *TreeError) WithOperation(operation string) *TreeError {
	te.operation = operation
	return te
}

// WithBlockAddr records which (file, offset) block was involved.
func (te *TreeError) WithBlockAddr(fileNo int, offset int64) *TreeError {
	te.fileNo = fileNo
	te.offset = offset
	return te
}

// WithTooBig marks this error as non-retryable: the entry alone can never
// fit in an empty block, so splitting or growing the file set cannot help.
func (te *TreeError) WithTooBig(tooBig bool) *TreeError {
	te.tooBig = tooBig
	return te
}

// Key returns the key that was being processed when the error occurred.
func (te *TreeError) Key() string { return te.key }

// Operation returns the name of the operation that was being performed.
func (te *TreeError) Operation() string { return te.operation }

// FileNo returns the file number of the block involved, if any.
func (te *TreeError) FileNo() int { return te.fileNo }

// Offset returns the byte offset of the block involved, if any.
func (te *TreeError) Offset() int64 { return te.offset }

// TooBig reports whether the failure is terminal (the entry can never fit).
func (te *TreeError) TooBig() bool { return te.tooBig }

// NewNoSpaceError creates a standard "no extent/file large enough" error.
func NewNoSpaceError(operation string, wanted int) *TreeError {
	return NewTreeError(nil, ErrorCodeNoSpace, "no space available to satisfy allocation").
		WithOperation(operation).
		WithDetail("wanted", wanted)
}

// NewTooBigError creates a standard "entry can never fit a block" error.
func NewTooBigError(operation, key string, size, blockSize int) *TreeError {
	return NewTreeError(nil, ErrorCodeTooBig, "entry exceeds capacity of an empty block").
		WithOperation(operation).
		WithKey(key).
		WithTooBig(true).
		WithDetail("entrySize", size).
		WithDetail("blockSize", blockSize)
}

// NewKeyNotFoundError creates a specialized error for a missing key.
func NewKeyNotFoundError(operation, key string) *TreeError {
	return NewTreeError(nil, ErrorCodeNotFound, "key not found").
		WithOperation(operation).
		WithKey(key)
}

// NewKeyExistsError creates a specialized error for a duplicate key on insert.
func NewKeyExistsError(operation, key string) *TreeError {
	return NewTreeError(nil, ErrorCodeExists, "key already exists").
		WithOperation(operation).
		WithKey(key)
}
