package config

import (
	"fmt"
	"strings"
)

var isolationLevels = map[string]bool{"": true, "strict": true, "standard": true, "minimal": true}

// TenantSeed is a school loaded into the tenant directory at startup
type TenantSeed struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Code           string `yaml:"code"`
	Domain         string `yaml:"domain"`
	IsolationLevel string `yaml:"isolation_level"`
}

// SuperAdminSeed is the platform operator created at startup. The password
// is only ever read from the environment.
type SuperAdminSeed struct {
	Email         string
	Password      string
	DefaultTenant string
}

type TenantsConfig interface {
	GetTenants() []TenantSeed
	GetSuperAdmin() SuperAdminSeed
}

type Tenants struct {
	file *FileConfig
}

var _ TenantsConfig = Tenants{}

func (t Tenants) GetTenants() []TenantSeed {
	return append([]TenantSeed(nil), t.file.Tenants...)
}

func (t Tenants) GetSuperAdmin() SuperAdminSeed {
	return SuperAdminSeed{
		Email:         GetEnv("SUPER_ADMIN_EMAIL", t.file.SuperAdmin.Email),
		Password:      GetEnv("SUPER_ADMIN_PASSWORD", ""),
		DefaultTenant: GetEnv("SUPER_ADMIN_TENANT", t.file.SuperAdmin.DefaultTenant),
	}
}

func validateTenants(fc *FileConfig) error {
	ids := make(map[string]bool, len(fc.Tenants))
	codes := make(map[string]bool, len(fc.Tenants))
	for i, t := range fc.Tenants {
		if t.ID == "" || t.Code == "" {
			return fmt.Errorf("tenants[%d]: id and code are required", i)
		}
		if ids[t.ID] {
			return fmt.Errorf("tenants[%d]: duplicate id %q", i, t.ID)
		}
		code := strings.ToLower(t.Code)
		if codes[code] {
			return fmt.Errorf("tenants[%d]: duplicate code %q", i, t.Code)
		}
		if !isolationLevels[t.IsolationLevel] {
			return fmt.Errorf("tenants[%d]: unknown isolation level %q", i, t.IsolationLevel)
		}
		ids[t.ID] = true
		codes[code] = true
	}
	if d := fc.SuperAdmin.DefaultTenant; d != "" && !ids[d] {
		return fmt.Errorf("super_admin.default_tenant %q is not a configured tenant", d)
	}
	return nil
}
