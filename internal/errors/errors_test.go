package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, apperrors.Wrapf(nil, "context %d", 1))
	})

	t.Run("wraps with context", func(t *testing.T) {
		err := apperrors.Wrapf(apperrors.ErrNotFound, "lookup %s", "tenant-a")
		require.EqualError(t, err, "lookup tenant-a: not found")
		require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("as finds typed error", func(t *testing.T) {
		type codeErr struct{ error }
		err := fmt.Errorf("outer: %w", codeErr{apperrors.ErrMissingKey})
		var target codeErr
		require.True(t, apperrors.As(err, &target))
	})
}
