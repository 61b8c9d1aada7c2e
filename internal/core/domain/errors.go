package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnsupportedFormat     = errors.New("unsupported format")
	ErrCapabilityUnavailable = errors.New("no extraction path available")
	ErrDocumentOpen          = errors.New("document open failed")
	ErrPersistence           = errors.New("persistence failure")
	ErrTaskNotFound          = errors.New("task not found")
	ErrTemporary             = errors.New("temporary failure")
	ErrGenerationFailed      = errors.New("summary generation failed")
)

func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsFatal reports whether a task error must not be retried.
func IsFatal(err error) bool {
	return IsKind(err, ErrUnsupportedFormat) ||
		IsKind(err, ErrCapabilityUnavailable) ||
		IsKind(err, ErrInvalidInput) ||
		IsKind(err, ErrGenerationFailed)
}
