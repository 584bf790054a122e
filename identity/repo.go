package identity

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidCredentials is the only definitive denial a CredentialStore returns.
// Any other error (timeouts, connectivity) is treated as an ambiguous failure.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CredentialStore is the external collaborator holding password hashes.
// The session layer consults it and never owns user data.
type CredentialStore interface {
	// ValidateCredentials returns the identity if email and password match.
	ValidateCredentials(ctx context.Context, email, password string) (*Identity, error)

	// GetByID retrieves an identity
	GetByID(ctx context.Context, id string) (*Identity, error)

	// CheckPassword verifies a password for a known identity
	CheckPassword(ctx context.Context, id, password string) error

	// UpdatePassword stores a new hash and clears MustChangePassword
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// RecordLogin sets LastLogin
	RecordLogin(ctx context.Context, id string, at time.Time) error
}
