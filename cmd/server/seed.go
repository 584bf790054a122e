package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/school-auth/identity"
	fakecredentialstore "github.com/jrsteele09/school-auth/identity/repofake"
	"github.com/jrsteele09/school-auth/internal/config"
	"github.com/jrsteele09/school-auth/tenants"
)

// seedTenants loads the configured schools into the tenant directory.
func seedTenants(repo tenants.Repo, seeds []config.TenantSeed) error {
	if len(seeds) == 0 {
		log.Warn().Msg("No tenants configured; nobody can log in until one is added")
		return nil
	}
	for _, seed := range seeds {
		level, err := tenants.ParseIsolationLevel(seed.IsolationLevel)
		if err != nil {
			return fmt.Errorf("tenant %s: %w", seed.ID, err)
		}
		err = repo.Upsert(&tenants.Tenant{
			ID:             seed.ID,
			Name:           seed.Name,
			Code:           seed.Code,
			Domain:         seed.Domain,
			IsolationLevel: level,
		})
		if err != nil {
			return fmt.Errorf("tenant %s: %w", seed.ID, err)
		}
	}
	log.Info().Int("count", len(seeds)).Msg("Tenants loaded")
	return nil
}

// seedSuperAdmin creates the platform operator when an email and password
// are configured. With a default tenant the operator can log in without a
// tenant code; otherwise every login names one.
func seedSuperAdmin(credentials *fakecredentialstore.FakeCredentialStore, repo tenants.Repo, seed config.SuperAdminSeed) error {
	if seed.Email == "" || seed.Password == "" {
		return nil
	}
	if err := identity.ValidatePasswordStrength(seed.Password, identity.DefaultMinPasswordLength); err != nil {
		return fmt.Errorf("SUPER_ADMIN_PASSWORD: %w", err)
	}
	if seed.DefaultTenant != "" {
		if _, err := repo.Get(seed.DefaultTenant); err != nil {
			return fmt.Errorf("super-admin default tenant %s: %w", seed.DefaultTenant, err)
		}
	}
	hash, err := identity.HashPassword(seed.Password)
	if err != nil {
		return err
	}
	if err := credentials.Upsert(&identity.Identity{
		Email:        seed.Email,
		PasswordHash: hash,
		Role:         identity.RoleSuperAdmin,
		TenantID:     seed.DefaultTenant,
	}); err != nil {
		return err
	}
	log.Info().Str("default_tenant", seed.DefaultTenant).Msg("Super-admin seeded")
	return nil
}
