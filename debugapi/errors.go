package debugapi

import "errors"

var (
	// ErrNotFound is returned when an ID or address no longer resolves to a
	// live entity. Querying past the end of the user address space also
	// reports ErrNotFound.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied is returned when the caller's privileges are not
	// sufficient for the requested access rights.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidAddress is returned when an address range is not backed by
	// usable memory.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrReadFailed is returned on a short or failed memory read.
	ErrReadFailed = errors.New("read failed")

	// ErrWriteFailed is returned on a short or failed memory write.
	ErrWriteFailed = errors.New("write failed")

	// ErrInvalidArgument is returned for malformed snapshots and zero or
	// out-of-range sizes.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupported is returned when the platform lacks the capability.
	ErrUnsupported = errors.New("unsupported")
)
