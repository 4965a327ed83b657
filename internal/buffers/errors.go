package buffers

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when a buffer set does not fit the pool budget.
	ErrOutOfMemory = errors.New("buffer pool out of memory")
	// ErrInvalidFormat is returned for a zero-sized allocation or format.
	ErrInvalidFormat = errors.New("invalid buffer format")
	// ErrStaleBuffer is returned for an ID whose set has been freed or replaced.
	ErrStaleBuffer = errors.New("stale buffer id")
	// ErrOwnership is the sentinel wrapped by every OwnershipError.
	ErrOwnership = errors.New("buffer ownership violation")
)

// OwnershipError reports a transfer whose expected owner did not match.
type OwnershipError struct {
	Op   string
	ID   ID
	Want Owner
	Got  Owner
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s %s: owned by %s, expected %s", e.Op, e.ID, e.Got, e.Want)
}

func (e *OwnershipError) Unwrap() error {
	return ErrOwnership
}
