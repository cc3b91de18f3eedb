package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuth             = errors.New("invalid login or password")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
	ErrUnknownAssignee  = errors.New("unknown assignee")
	ErrNotFound         = errors.New("not found")
	ErrSyncFailed       = errors.New("sync failed")
)

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: missing or invalid %s", ErrValidation, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Validation(fields ...string) error {
	return &ValidationError{Fields: fields}
}

// Sync wraps a transport-level failure so callers can match ErrSyncFailed
// and still reach the cause.
func Sync(cause error) error {
	if cause == nil || errors.Is(cause, ErrSyncFailed) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrSyncFailed, cause)
}
