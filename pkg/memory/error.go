package memory

import "errors"

var (
	// ErrNotConfigured is returned when an operation requires a driver
	// that has not been configured.
	ErrNotConfigured = errors.New("memory driver not configured")

	// ErrConnection is returned when the memory store connection fails.
	ErrConnection = errors.New("memory store connection failed")

	// ErrDimensionMismatch is returned when an embedding's length does
	// not match the store's configured dimensions.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
