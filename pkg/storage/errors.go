package storage

import "errors"

// ErrNotFound is returned when the requested object does not exist in the
// backing store. Every other failure is reported as an opaque wrapped error.
var ErrNotFound = errors.New("storage: object not found")

// IsNotFound reports whether err is the storage not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
