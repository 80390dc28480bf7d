package domain

import (
	"errors"
	"fmt"
)

// Storage errors
var (
	ErrNotFound           = errors.New("document not found")
	ErrWriteConflict      = errors.New("write conflict: stale revision token")
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// ValidationError is returned by a saver's finish hook when the document
// state is rejected before any write takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// LogWriteError reports that a document was written but its log entry was
// not. The document commit stands; the error carries the committed id and
// revision so the gap between document state and audit trail can be traced.
type LogWriteError struct {
	DocID string
	Rev   string
	Err   error
}

func (e *LogWriteError) Error() string {
	return fmt.Sprintf("log write failed for committed document %s (rev %s): %v", e.DocID, e.Rev, e.Err)
}

func (e *LogWriteError) Unwrap() error {
	return e.Err
}

// AttachmentError reports a failed attachment operation after the owning
// document and its log entry were already committed.
type AttachmentError struct {
	DocID    string
	Filename string
	Err      error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment %q on document %s: %v", e.Filename, e.DocID, e.Err)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}
