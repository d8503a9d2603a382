package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks lookups for entities that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input to a pipeline node. Never retried.
	ErrValidation = errors.New("validation failure")
	// ErrTransient marks timeouts, rate limits and temporary store
	// unavailability. Retried up to the node budget.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks unrecoverable failures such as unreadable
	// documents or content policy rejections. Never retried.
	ErrPermanent = errors.New("permanent failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
