package catalog

import "errors"

var (
	// ErrNotFound is returned when the catalog has no dataset by that name.
	ErrNotFound = errors.New("dataset not found")

	// ErrValidation is returned when a dataset document is rejected, either
	// by the client-side pre-check or by the catalog.
	ErrValidation = errors.New("invalid dataset document")
)
