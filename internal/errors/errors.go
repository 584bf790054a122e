package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the repositories and stores
var (
	// Lookup errors
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrTenantNotFound = errors.New("tenant not found")

	// Input errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrMissingKey     = errors.New("key is required")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
