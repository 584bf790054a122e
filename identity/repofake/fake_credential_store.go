package fakecredentialstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/school-auth/identity"
	apperrors "github.com/jrsteele09/school-auth/internal/errors"
)

var _ identity.CredentialStore = (*FakeCredentialStore)(nil)

// FakeCredentialStore is an in-memory credential store. Latency and a forced
// failure can be injected to exercise timeout handling.
type FakeCredentialStore struct {
	identities map[string]*identity.Identity
	emailIds   map[string]string // email to identity id
	lock       sync.RWMutex

	latency time.Duration
	failure error
}

func NewFakeCredentialStore() *FakeCredentialStore {
	return &FakeCredentialStore{
		identities: make(map[string]*identity.Identity),
		emailIds:   make(map[string]string),
	}
}

// SetLatency delays every validation call, honouring context cancellation
func (cs *FakeCredentialStore) SetLatency(d time.Duration) {
	cs.lock.Lock()
	defer cs.lock.Unlock()
	cs.latency = d
}

// SetFailure makes every validation call return err until reset with nil
func (cs *FakeCredentialStore) SetFailure(err error) {
	cs.lock.Lock()
	defer cs.lock.Unlock()
	cs.failure = err
}

func (cs *FakeCredentialStore) Upsert(ident *identity.Identity) error {
	cs.lock.Lock()
	defer cs.lock.Unlock()

	if ident.ID == "" {
		ident.ID = uuid.New().String()
	}
	stored := *ident
	cs.identities[ident.ID] = &stored
	cs.emailIds[normaliseEmail(ident.Email)] = ident.ID
	return nil
}

func (cs *FakeCredentialStore) ValidateCredentials(ctx context.Context, email, password string) (*identity.Identity, error) {
	if err := cs.simulate(ctx); err != nil {
		return nil, err
	}

	cs.lock.RLock()
	id, ok := cs.emailIds[normaliseEmail(email)]
	var ident *identity.Identity
	if ok {
		ident = cs.identities[id]
	}
	cs.lock.RUnlock()

	if ident == nil || ident.Blocked || !identity.CheckPasswordHash(password, ident.PasswordHash) {
		return nil, identity.ErrInvalidCredentials
	}
	cp := *ident
	return &cp, nil
}

func (cs *FakeCredentialStore) GetByID(ctx context.Context, id string) (*identity.Identity, error) {
	cs.lock.RLock()
	defer cs.lock.RUnlock()

	ident, ok := cs.identities[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (cs *FakeCredentialStore) CheckPassword(ctx context.Context, id, password string) error {
	if err := cs.simulate(ctx); err != nil {
		return err
	}

	cs.lock.RLock()
	ident, ok := cs.identities[id]
	cs.lock.RUnlock()

	if !ok || !identity.CheckPasswordHash(password, ident.PasswordHash) {
		return identity.ErrInvalidCredentials
	}
	return nil
}

func (cs *FakeCredentialStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	cs.lock.Lock()
	defer cs.lock.Unlock()

	ident, ok := cs.identities[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	ident.PasswordHash = passwordHash
	ident.MustChangePassword = false
	return nil
}

func (cs *FakeCredentialStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	cs.lock.Lock()
	defer cs.lock.Unlock()

	ident, ok := cs.identities[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	ident.LastLogin = at
	return nil
}

// Name identifies the data type this store contributes to tenant exports
func (cs *FakeCredentialStore) Name() string {
	return "users"
}

// ExportTenant returns the tenant's identities sorted by id, without password hashes.
// Super-admins belong to the platform, not to their default tenant.
func (cs *FakeCredentialStore) ExportTenant(ctx context.Context, tenantID string) (any, error) {
	cs.lock.RLock()
	defer cs.lock.RUnlock()

	list := make([]identity.Identity, 0)
	for _, ident := range cs.identities {
		if ident.TenantID == tenantID && !ident.IsSuperAdmin() {
			list = append(list, *ident)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list, nil
}

// DeleteTenant removes every identity belonging to the tenant except super-admins
func (cs *FakeCredentialStore) DeleteTenant(ctx context.Context, tenantID string) (int, error) {
	cs.lock.Lock()
	defer cs.lock.Unlock()

	n := 0
	for id, ident := range cs.identities {
		if ident.TenantID != tenantID || ident.IsSuperAdmin() {
			continue
		}
		delete(cs.emailIds, normaliseEmail(ident.Email))
		delete(cs.identities, id)
		n++
	}
	return n, nil
}

func (cs *FakeCredentialStore) simulate(ctx context.Context) error {
	cs.lock.RLock()
	latency, failure := cs.latency, cs.failure
	cs.lock.RUnlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return failure
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
