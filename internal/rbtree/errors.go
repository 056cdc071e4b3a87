package rbtree

import "github.com/iamNilotpal/blobtree/pkg/errors"

// IsExists reports whether err is a TreeError produced by Insert on a
// duplicate key.
func IsExists(err error) bool {
	te, ok := errors.AsTreeError(err)
	return ok && te.Code() == errors.ErrorCodeExists
}

// IsNotFound reports whether err is a TreeError produced by Remove on an
// absent key.
func IsNotFound(err error) bool {
	te, ok := errors.AsTreeError(err)
	return ok && te.Code() == errors.ErrorCodeNotFound
}
