package common

import "errors"

// Callers match these values with errors.Is.
var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrMalformedPackage means the input is not a valid e-book package
	// (missing mandatory archive entries or missing title). Never retried.
	ErrMalformedPackage = errors.New("malformed package")

	// ErrCorrupted means a digest mismatch was detected while verifying a
	// segment or a reassembled file. Reported per item, never silently
	// accepted.
	ErrCorrupted = errors.New("content corrupted")

	// ErrConfirmTimeout means a submitted transaction did not become
	// retrievable within the bounded confirmation window.
	ErrConfirmTimeout = errors.New("transaction confirmation timed out")

	// ErrUnavailable is a transient node failure; polling loops log it and
	// retry after their normal idle interval.
	ErrUnavailable = errors.New("node unavailable")

	// ErrDuplicateBook signals that a manifest with the same whole-file
	// digest already exists in the group. It is a confirmable warning, not
	// a hard failure.
	ErrDuplicateBook = errors.New("book already published to group")

	// ErrIncomplete means a book's manifest is known but not all of its
	// segments have arrived yet. Not an error state; syncing continues.
	ErrIncomplete = errors.New("book not fully synced yet")

	// ErrStopped is returned when an operation is abandoned because its
	// owner was asked to stop.
	ErrStopped = errors.New("stopped")
)
