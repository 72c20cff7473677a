package activedirectory

import "errors"

var (
	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidOptions is returned for malformed QueryOptions or arguments.
	ErrInvalidOptions = errors.New("invalid query options")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("active directory client is closed")
)
