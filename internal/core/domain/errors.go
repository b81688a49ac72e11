package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTemporary          = errors.New("temporary failure")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ErrRetrievalUnavailable marks a request that could not be served because mandatory
// retrieval or the backing storage failed. It is also a temporary failure so callers can retry.
var ErrRetrievalUnavailable = fmt.Errorf("retrieval unavailable: %w", ErrTemporary)

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
