package media

import "errors"

var (
	// ErrNotFound indicates the requested file does not exist in the content directory.
	ErrNotFound = errors.New("media file not found")
	// ErrInvalidName indicates a file name that is empty or reduces to a directory.
	ErrInvalidName = errors.New("invalid media file name")
	// ErrTooLarge indicates the payload exceeds the configured max size.
	ErrTooLarge = errors.New("media file too large")
)
