package tenantrepofakes

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/jrsteele09/school-auth/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	tenants map[string]*tenants.Tenant
	codes   map[string]string // lower-cased code to tenant id
	lock    sync.RWMutex
}

func NewFakeTenantRepo() tenants.Repo {
	return &FakeTenantRepo{
		tenants: make(map[string]*tenants.Tenant),
		codes:   make(map[string]string),
	}
}

func (tr *FakeTenantRepo) Upsert(tenantData *tenants.Tenant) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tenantData.ID == "" {
		tenantData.ID = uuid.New().String()
	}
	if tenantData.Code != "" {
		if owner, ok := tr.codes[strings.ToLower(tenantData.Code)]; ok && owner != tenantData.ID {
			return apperrors.Wrapf(apperrors.ErrAlreadyExists, "tenant code %s", tenantData.Code)
		}
		tr.codes[strings.ToLower(tenantData.Code)] = tenantData.ID
	}
	stored := *tenantData
	tr.tenants[tenantData.ID] = &stored
	return nil
}

func (tr *FakeTenantRepo) Delete(tenantID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return nil
	}
	delete(tr.codes, strings.ToLower(t.Code))
	delete(tr.tenants, tenantID)
	return nil
}

func (tr *FakeTenantRepo) Get(tenantID string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return nil, apperrors.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (tr *FakeTenantRepo) GetByCode(code string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	id, ok := tr.codes[strings.ToLower(strings.TrimSpace(code))]
	tr.lock.RUnlock()
	if !ok {
		return nil, apperrors.ErrTenantNotFound
	}
	return tr.Get(id)
}

func (tr *FakeTenantRepo) List(offset, limit int) ([]*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	list := make([]*tenants.Tenant, 0, len(tr.tenants))
	for _, t := range tr.tenants {
		cp := *t
		list = append(list, &cp)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	if offset < 0 || offset >= len(list) {
		return nil, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}
