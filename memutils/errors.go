package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrInvalidArgument is returned when a size, alignment, range, or handle passed to the heap is malformed
	ErrInvalidArgument error = errors.New("invalid argument")
	// ErrOutOfMemory is returned when no free extent, contiguous or otherwise, can satisfy a request
	ErrOutOfMemory error = errors.New("out of memory")
	// ErrInvalidState is returned when the heap detects that its internal structures disagree with one another,
	// or when an operation is attempted on an object in the wrong state (such as freeing a free block)
	ErrInvalidState error = errors.New("invalid state")
	// ErrBusy is returned by a ResourceManager to report a transient failure. The heap never retries
	// on its own.
	ErrBusy error = errors.New("resource busy")
	// ErrNotSupported is returned when an operation is not defined for the heap's type or configuration
	ErrNotSupported error = errors.New("operation not supported")
	// ErrInsufficientResources is returned when a fixed-capacity table (blacklist, reference count) is full
	ErrInsufficientResources error = errors.New("insufficient resources")
)
