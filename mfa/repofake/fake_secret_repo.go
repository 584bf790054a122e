package fakemfarepo

import (
	"context"
	"sync"

	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/jrsteele09/school-auth/mfa"
)

var _ mfa.SecretRepo = (*FakeSecretRepo)(nil)

type FakeSecretRepo struct {
	secrets map[string]*mfa.Secret
	failure error
	lock    sync.RWMutex
}

func NewFakeSecretRepo() *FakeSecretRepo {
	return &FakeSecretRepo{secrets: make(map[string]*mfa.Secret)}
}

// SetFailure makes every call return err until cleared with nil
func (r *FakeSecretRepo) SetFailure(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failure = err
}

func (r *FakeSecretRepo) Get(ctx context.Context, identityID string) (*mfa.Secret, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.failure != nil {
		return nil, r.failure
	}
	s, ok := r.secrets[identityID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *s
	cp.RecoveryDigests = append([]string(nil), s.RecoveryDigests...)
	return &cp, nil
}

func (r *FakeSecretRepo) Upsert(ctx context.Context, secret *mfa.Secret) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.failure != nil {
		return r.failure
	}
	cp := *secret
	cp.RecoveryDigests = append([]string(nil), secret.RecoveryDigests...)
	r.secrets[secret.IdentityID] = &cp
	return nil
}

func (r *FakeSecretRepo) Delete(ctx context.Context, identityID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.failure != nil {
		return r.failure
	}
	if _, ok := r.secrets[identityID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.secrets, identityID)
	return nil
}

func (r *FakeSecretRepo) ConsumeRecoveryCode(ctx context.Context, identityID, digest string) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.failure != nil {
		return false, r.failure
	}
	s, ok := r.secrets[identityID]
	if !ok {
		return false, nil
	}
	for i, d := range s.RecoveryDigests {
		if d == digest {
			s.RecoveryDigests = append(s.RecoveryDigests[:i], s.RecoveryDigests[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *FakeSecretRepo) AcceptTOTPStep(ctx context.Context, identityID string, step int64) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.failure != nil {
		return false, r.failure
	}
	s, ok := r.secrets[identityID]
	if !ok || step <= s.LastTOTPStep {
		return false, nil
	}
	s.LastTOTPStep = step
	return true, nil
}

// ExportTenant and DeleteTenant let compliance treat enrollments as tenant data.
func (r *FakeSecretRepo) Name() string {
	return "mfa_enrollments"
}

func (r *FakeSecretRepo) ExportTenant(ctx context.Context, tenantID string) (any, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]map[string]any, 0)
	for _, s := range r.secrets {
		if s.TenantID != tenantID {
			continue
		}
		out = append(out, map[string]any{
			"identity_id":     s.IdentityID,
			"enabled_at":      s.EnabledAt,
			"recovery_unused": len(s.RecoveryDigests),
		})
	}
	return out, nil
}

func (r *FakeSecretRepo) DeleteTenant(ctx context.Context, tenantID string) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for id, s := range r.secrets {
		if s.TenantID == tenantID {
			delete(r.secrets, id)
			n++
		}
	}
	return n, nil
}
