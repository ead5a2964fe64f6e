package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound means the token is unknown, expired or purged. The
	// client has to start a new upload.
	ErrSessionNotFound = errors.New("session not found")

	// ErrOffsetConflict is wrapped by *ConflictError
	ErrOffsetConflict = errors.New("offset conflict")

	// ErrSessionClosed is returned for writes to a finalized or aborted session
	ErrSessionClosed = errors.New("session closed")

	// ErrIOFailure is wrapped by *IOError
	ErrIOFailure = errors.New("storage failure")

	ErrIncompleteUpload = errors.New("incomplete")
	ErrDigestMismatch   = errors.New("sha256 mismatch")
	ErrCapacityExceeded = errors.New("too many upload sessions")
	ErrInvalidFilename  = errors.New("invalid filename")
)

// ConflictError rejects a chunk whose offset is not the session's expected
// offset. Expected is the offset the client must resend from.
type ConflictError struct {
	Expected int64
	Got      int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("offset conflict: got %d, expected %d", e.Got, e.Expected)
}

func (e *ConflictError) Unwrap() error {
	return ErrOffsetConflict
}

// IOError wraps a storage backend failure. The session offset was not
// advanced, so the same request can be retried.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIOFailure, e.Err}
}
