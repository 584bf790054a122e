package mfa

import (
	"context"
	"time"
)

// Secret is an identity's TOTP enrollment. Recovery codes are kept only as
// SHA-256 hex digests.
type Secret struct {
	IdentityID      string    `json:"identity_id"`
	TenantID        string    `json:"tenant_id"`
	Secret          string    `json:"secret"`
	RecoveryDigests []string  `json:"recovery_digests"`
	EnabledAt       time.Time `json:"enabled_at"`
	// LastTOTPStep is the time step of the most recently accepted TOTP code.
	LastTOTPStep int64 `json:"last_totp_step"`
}

// SecretRepo stores MFA enrollments.
type SecretRepo interface {
	// Get returns apperrors.ErrNotFound when the identity is not enrolled.
	Get(ctx context.Context, identityID string) (*Secret, error)
	Upsert(ctx context.Context, secret *Secret) error
	Delete(ctx context.Context, identityID string) error
	// ConsumeRecoveryCode removes digest from the enrollment if present. It
	// reports true at most once per digest, even under concurrent calls.
	ConsumeRecoveryCode(ctx context.Context, identityID, digest string) (bool, error)
	// AcceptTOTPStep records step as used when it is later than the last
	// accepted step. It reports false for a step at or before it.
	AcceptTOTPStep(ctx context.Context, identityID string, step int64) (bool, error)
}
