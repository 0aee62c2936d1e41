package version

import (
	"errors"
	"fmt"
)

// ErrDuplicateContent means the submitted content hashes identically to the
// document's current version; nothing was created. User-correctable.
var ErrDuplicateContent = errors.New("no changes detected: content is identical to current version")

// ErrNotFound means the referenced document, version number or version ID
// does not exist.
var ErrNotFound = errors.New("not found")

// StorageError wraps a persistence failure. It is not recoverable locally
// and always propagates to the caller; the store's transaction guarantees
// that no partial version state survives it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
