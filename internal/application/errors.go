package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: authorization denied")
	// ErrNotFound is returned when the targeted record does not exist.
	ErrNotFound = errors.New("application: not found")
)

// Rule identifies the business rule behind a RuleError.
type Rule string

const (
	RuleConflict         Rule = "conflict"
	RuleCapacityExceeded Rule = "capacity_exceeded"
	RuleRoomNotFound     Rule = "room_not_found"
	RuleRoomUnavailable  Rule = "room_unavailable"
	RuleInvalidDate      Rule = "invalid_date"
	RuleDuplicateRequest Rule = "duplicate_request"
	RuleRoomOccupied     Rule = "room_occupied"
)

// RuleError reports a business-rule violation. Detail carries an optional
// machine-readable payload, e.g. the first conflicting slot label of a bulk
// change validation.
type RuleError struct {
	Rule    Rule
	Message string
	Detail  string
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func ruleError(rule Rule, format string, args ...any) *RuleError {
	return &RuleError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// StorageError reports an I/O failure in the file-backed store, surfaced
// after any compensating rollback has run.
type StorageError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// ErrorKind maps any workflow error to a stable label used for logging and
// protocol error tokens.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "authorization_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "invalid_input"
	}
	var rErr *RuleError
	if errors.As(err, &rErr) {
		return "business_rule_violation"
	}
	var sErr *StorageError
	if errors.As(err, &sErr) {
		return "storage_failure"
	}

	return "unexpected"
}
