package repositories

import "fmt"

// ErrorKind categorises storage failures for service-layer mapping.
type ErrorKind string

const (
	// ErrorKindNotFound indicates the requested record does not exist.
	ErrorKindNotFound ErrorKind = "not_found"
	// ErrorKindConflict indicates a uniqueness or concurrent-update conflict.
	ErrorKindConflict ErrorKind = "conflict"
	// ErrorKindUnavailable indicates the backing store could not be reached.
	ErrorKindUnavailable ErrorKind = "unavailable"
	// ErrorKindInternal represents any other persistence failure.
	ErrorKindInternal ErrorKind = "internal"
)

// StorageError is the concrete RepositoryError shared by all registry
// implementations.
type StorageError struct {
	Op      string
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *StorageError) IsNotFound() bool { return e != nil && e.Kind == ErrorKindNotFound }

// IsConflict implements RepositoryError.
func (e *StorageError) IsConflict() bool { return e != nil && e.Kind == ErrorKindConflict }

// IsUnavailable implements RepositoryError.
func (e *StorageError) IsUnavailable() bool { return e != nil && e.Kind == ErrorKindUnavailable }

// NewNotFound constructs a not-found storage error.
func NewNotFound(op, message string) *StorageError {
	return &StorageError{Op: op, Kind: ErrorKindNotFound, Message: message}
}

// NewConflict constructs a conflict storage error.
func NewConflict(op, message string) *StorageError {
	return &StorageError{Op: op, Kind: ErrorKindConflict, Message: message}
}

// NewUnavailable wraps a connectivity failure.
func NewUnavailable(op string, err error) *StorageError {
	return &StorageError{Op: op, Kind: ErrorKindUnavailable, Message: "store unavailable", Err: err}
}

// NewInternal wraps an uncategorised persistence failure.
func NewInternal(op string, err error) *StorageError {
	msg := "storage failure"
	if err != nil {
		msg = err.Error()
	}
	return &StorageError{Op: op, Kind: ErrorKindInternal, Message: msg, Err: err}
}
