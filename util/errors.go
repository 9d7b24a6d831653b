package util

import (
	"errors"
	"fmt"
)

// ErrPageNotFound is returned by pool operations that require a page to
// already be resident (flushing, in particular) when it is not.
var ErrPageNotFound = errors.New("page not found in buffer pool")

// StrataError wraps a user-facing message around an optional cause,
// matching the error kinds the spec distinguishes: capacity exhaustion and
// not-found conditions are reported through ordinary (bool, error)
// returns; this type is for the handful of cases worth naming so callers
// can match on them with errors.As.
type StrataError struct {
	Message string
	Err     error
}

func (e *StrataError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StrataError) Unwrap() error {
	return e.Err
}

// BufferPoolExhaustedError is returned when every frame in the pool is
// pinned and no victim can be produced.
type BufferPoolExhaustedError struct {
	*StrataError
}

// NewBufferPoolExhaustedError builds a BufferPoolExhaustedError for the
// page the caller was trying to bring in.
func NewBufferPoolExhaustedError(pageID int64) *BufferPoolExhaustedError {
	return &BufferPoolExhaustedError{&StrataError{Message: fmt.Sprintf("buffer pool exhausted: no evictable frame available for page %d", pageID)}}
}
