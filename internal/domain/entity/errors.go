package entity

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
)

var (
	// ErrNotFound is returned when a referenced client, invoice or series does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when input is missing or inconsistent
	ErrValidation = errors.New("validation failed")

	// ErrStoreTimeout is returned when a store call exceeds its deadline
	ErrStoreTimeout = errors.New("store timeout")

	// ErrDuplicateOccurrence is returned when an occurrence already exists for a client and date
	ErrDuplicateOccurrence = errors.New("duplicate occurrence")

	// ErrVersionConflict is returned when a compare-and-swap update loses a race
	ErrVersionConflict = errors.New("version conflict")

	// ErrInvalidTransition is returned when a status change is not permitted
	ErrInvalidTransition = errors.New("invalid status transition")
)

// NotFoundError names the missing record
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError describes the offending field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StoreTimeoutError wraps the deadline error of a store operation
type StoreTimeoutError struct {
	Op  string
	Err error
}

func (e *StoreTimeoutError) Error() string {
	return fmt.Sprintf("store %s timed out: %v", e.Op, e.Err)
}

func (e *StoreTimeoutError) Is(target error) bool { return target == ErrStoreTimeout }

func (e *StoreTimeoutError) Unwrap() error { return e.Err }

// DuplicateOccurrenceError identifies the occurrence that already exists
type DuplicateOccurrenceError struct {
	ClientID  string
	SeriesID  string
	IssueDate civil.Date
}

func (e *DuplicateOccurrenceError) Error() string {
	if e.SeriesID == "" {
		return fmt.Sprintf("client %s already has an invoice for %s", e.ClientID, e.IssueDate)
	}
	return fmt.Sprintf("series %s already has an occurrence on %s for client %s", e.SeriesID, e.IssueDate, e.ClientID)
}

func (e *DuplicateOccurrenceError) Is(target error) bool { return target == ErrDuplicateOccurrence }
