package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeExtraction represents extraction-service errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeSource represents document-source errors
	ErrorTypeSource ErrorType = "source"
	// ErrorTypeStore represents graph-store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Extraction Errors

// ErrTransientExternal is returned when the extraction service fails for
// transport, timeout or quota reasons. Recovered locally as an empty
// extraction result; never fatal to a build run.
type ErrTransientExternal struct {
	*BaseError
	Document string
}

func NewTransientExternal(document string, err error) *ErrTransientExternal {
	return &ErrTransientExternal{
		BaseError: NewBaseError(ErrorTypeExtraction, fmt.Sprintf("extraction service unavailable for %q", document), err),
		Document:  document,
	}
}

// ErrMalformedExtraction is returned when the model response contains no
// parseable JSON object. Recovered locally as an empty extraction result.
type ErrMalformedExtraction struct {
	*BaseError
	Snippet string
}

func NewMalformedExtraction(snippet string, err error) *ErrMalformedExtraction {
	return &ErrMalformedExtraction{
		BaseError: NewBaseError(ErrorTypeExtraction, "unparseable extraction response", err),
		Snippet:   snippet,
	}
}

// ErrOrphanRelation is recorded when a relation references a label that is
// not among the entities of the same extraction result. The relation is
// dropped; the warning is kept for the run summary.
type ErrOrphanRelation struct {
	*BaseError
	SourceLabel string
	TargetLabel string
}

func NewOrphanRelation(sourceLabel, targetLabel string) *ErrOrphanRelation {
	return &ErrOrphanRelation{
		BaseError:   NewBaseError(ErrorTypeExtraction, fmt.Sprintf("relation references unknown entity: %q -> %q", sourceLabel, targetLabel), nil),
		SourceLabel: sourceLabel,
		TargetLabel: targetLabel,
	}
}

// Source Errors

// ErrDocumentSourceUnavailable is returned when the document list cannot be
// obtained at all. This is the only fatal condition of a build run.
type ErrDocumentSourceUnavailable struct {
	*BaseError
}

func NewDocumentSourceUnavailable(err error) *ErrDocumentSourceUnavailable {
	return &ErrDocumentSourceUnavailable{
		BaseError: NewBaseError(ErrorTypeSource, "cannot enumerate documents", err),
	}
}

// ErrDocumentFetchFailed is recorded when a single document's content cannot
// be fetched. Non-fatal; the document is skipped.
type ErrDocumentFetchFailed struct {
	*BaseError
	DocumentID string
}

func NewDocumentFetchFailed(documentID string, err error) *ErrDocumentFetchFailed {
	return &ErrDocumentFetchFailed{
		BaseError:  NewBaseError(ErrorTypeSource, fmt.Sprintf("failed to fetch document %s", documentID), err),
		DocumentID: documentID,
	}
}

// Store Errors

// ErrConcurrentBuild is returned when a save is attempted while another
// build is already writing the snapshot. Surfaced to the caller as a
// try-again-later condition; never queued.
type ErrConcurrentBuild struct {
	*BaseError
}

func NewConcurrentBuild() *ErrConcurrentBuild {
	return &ErrConcurrentBuild{
		BaseError: NewBaseError(ErrorTypeStore, "a graph build is already in progress", nil),
	}
}

// ErrSnapshotCorrupt is returned when a persisted snapshot cannot be decoded
type ErrSnapshotCorrupt struct {
	*BaseError
}

func NewSnapshotCorrupt(err error) *ErrSnapshotCorrupt {
	return &ErrSnapshotCorrupt{
		BaseError: NewBaseError(ErrorTypeStore, "persisted snapshot is corrupt", err),
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var base *BaseError
	if errors.As(err, &base) {
		return base.Type == errType
	}
	return false
}

// IsFatal reports whether an error must abort a build run. Everything else
// is absorbed into the run summary's non-fatal error list.
func IsFatal(err error) bool {
	var src *ErrDocumentSourceUnavailable
	if errors.As(err, &src) {
		return true
	}
	var busy *ErrConcurrentBuild
	return errors.As(err, &busy)
}
