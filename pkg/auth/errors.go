package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the credentials were missing or insufficient to
	// perform the operation requested.
	ErrUnauthorized = errors.New("auth: the credentials were missing, or were insufficient to perform the operation requested")
	// ErrForbidden means the client is not allowed to perform the operation
	// requested.
	ErrForbidden = errors.New("auth: the client is not allowed to perform the operation requested")
	// ErrInvalidCredentials means the credentials supplied were invalid.
	ErrInvalidCredentials = errors.New("auth: the credentials supplied were invalid")
	// ErrUnimplemented means the operation is not implemented by the
	// selected backend.
	ErrUnimplemented = errors.New("auth: this operation is not implemented")
	// ErrCrateNotFound means the requested crate does not exist.
	ErrCrateNotFound = errors.New("auth: the requested crate does not exist")
)

// ServiceError is an uncategorized internal auth failure. Its message
// discloses only a six-hex fingerprint of the underlying error, so operators
// can correlate logs without private detail or attacker-injected strings
// crossing the HTTP boundary.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("auth: internal error (%s)", errorID(e.Err))
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// serviceErr wraps err as a ServiceError unless it already belongs to the
// auth taxonomy.
func serviceErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUnimplemented),
		errors.Is(err, ErrCrateNotFound):
		return err
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Err: err}
}

func errorID(err error) string {
	sum := sha256.Sum256([]byte(err.Error()))
	return fmt.Sprintf("%x", sum[:3])
}
