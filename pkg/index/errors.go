package index

import (
	"errors"
	"fmt"

	"github.com/freighter-registry/freighter/pkg/storage"
)

var (
	// ErrNotFound is returned when the requested crate or version does not
	// exist in the index.
	ErrNotFound = errors.New("index: not found")
	// ErrNameNotAllowed is returned for crate names that are longer than 64
	// bytes or contain characters outside [a-z0-9_-] after lowercasing.
	ErrNameNotAllowed = errors.New("index: crate name with that length or characters is not allowed")
	// ErrUnsupported is returned by backends that do not implement an
	// optional operation such as search or listing.
	ErrUnsupported = errors.New("index: operation unsupported by this backend")
)

// ConflictError reports a resource conflict, such as publishing a
// (name, version) pair that already exists. Its message is considered safe
// to return to clients.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("index: conflict: %s", e.Msg)
}

// AsConflict unwraps err into a ConflictError, if it is one.
func AsConflict(err error) (*ConflictError, bool) {
	var c *ConflictError
	ok := errors.As(err, &c)
	return c, ok
}

// FromStorage translates a storage error into the index taxonomy.
func FromStorage(err error) error {
	if storage.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}
