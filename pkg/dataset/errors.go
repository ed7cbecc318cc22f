package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatchingFiles is returned when a materialization request selects
	// no file.
	ErrNoMatchingFiles = errors.New("no matching files")

	// ErrNotSupported is returned when a backend lacks a capability.
	ErrNotSupported = errors.New("operation not supported by backend")

	// ErrUnsupportedBackend matches every *UnsupportedBackendError.
	ErrUnsupportedBackend = errors.New("unsupported storage backend")

	// ErrInvalidMetadata is returned when a backend cannot find the keys it
	// needs in the dataset metadata.
	ErrInvalidMetadata = errors.New("invalid dataset metadata")
)

// UnsupportedBackendError reports a storage_service value with no registered
// adapter.
type UnsupportedBackendError struct {
	Kind string
}

func (e *UnsupportedBackendError) Error() string {
	if e.Kind == "" {
		return "unsupported storage backend: metadata has no storage_service"
	}
	return fmt.Sprintf("unsupported storage backend: %q", e.Kind)
}

// Is makes errors.Is(err, ErrUnsupportedBackend) hold.
func (e *UnsupportedBackendError) Is(target error) bool {
	return target == ErrUnsupportedBackend
}
