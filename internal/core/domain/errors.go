package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by adapters. Transport layers map them to status codes;
// infrastructure wraps raw failures into one of them with WrapError.
var (
	ErrNotFound       = errors.New("not found")
	ErrImportNotFound = fmt.Errorf("corpus import %w", ErrNotFound)
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	// ErrTemporary marks failures worth retrying later: timeouts, 5xx,
	// open circuit breakers.
	ErrTemporary        = errors.New("temporary failure")
	ErrStoreUnavailable = errors.New("passage store unavailable")
	// ErrMisconfigured covers deployment mistakes such as a missing API key
	// or an embedding dimension that does not match the store.
	ErrMisconfigured = errors.New("misconfigured")
)

// kindPriority orders kinds from most to least specific for KindOf.
var kindPriority = []error{
	ErrInvalidInput,
	ErrUnauthorized,
	ErrNotFound,
	ErrMisconfigured,
	ErrStoreUnavailable,
	ErrTemporary,
}

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

// KindOf returns the most specific kind err carries, or nil.
func KindOf(err error) error {
	for _, kind := range kindPriority {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
