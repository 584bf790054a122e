package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/school-auth/audit"
	"github.com/jrsteele09/school-auth/boundary"
)

// SealTenantData encrypts v under the key of the tenant the session is bound
// to. Payloads naming another tenant are refused.
func (sm *SessionManager) SealTenantData(ctx context.Context, token string, meta RequestMeta, v any) ([]byte, error) {
	session, tc, err := sm.Verify(ctx, token, meta)
	if err != nil {
		return nil, err
	}
	sealed, err := boundary.SealJSON(v, tc)
	if errors.Is(err, boundary.ErrBoundaryViolation) {
		sm.suspicious(ctx, session, meta, audit.SeverityCritical, "seal refused: "+err.Error())
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "[SessionManager.SealTenantData]")
	}
	return sealed, nil
}

// OpenTenantData decrypts data sealed for the session's tenant into v. Data
// sealed for another tenant, tampered bytes, or plaintext that references
// another tenant end the session and nothing is returned.
func (sm *SessionManager) OpenTenantData(ctx context.Context, token string, meta RequestMeta, ciphertext []byte, v any) error {
	session, tc, err := sm.Verify(ctx, token, meta)
	if err != nil {
		return err
	}
	err = boundary.OpenJSON(ciphertext, tc, v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, boundary.ErrDecryptionFailed), errors.Is(err, boundary.ErrBoundaryViolation):
		sm.suspicious(ctx, session, meta, audit.SeverityCritical, "open refused: "+err.Error())
		return err
	default:
		return errors.Wrap(err, "[SessionManager.OpenTenantData]")
	}
}
