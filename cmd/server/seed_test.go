package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/school-auth/audit"
	fakeauditsink "github.com/jrsteele09/school-auth/audit/repofake"
	"github.com/jrsteele09/school-auth/auth"
	fakecredentialstore "github.com/jrsteele09/school-auth/identity/repofake"
	"github.com/jrsteele09/school-auth/internal/config"
	"github.com/jrsteele09/school-auth/lockout"
	fakelockoutstore "github.com/jrsteele09/school-auth/lockout/repofake"
	"github.com/jrsteele09/school-auth/mfa"
	fakemfarepo "github.com/jrsteele09/school-auth/mfa/repofake"
	fakesessionrepo "github.com/jrsteele09/school-auth/sessions/repofakes"
	"github.com/jrsteele09/school-auth/tenantctx"
	"github.com/jrsteele09/school-auth/tenants"
	tenantrepofakes "github.com/jrsteele09/school-auth/tenants/repofakes"
)

const seedYAML = `
tenants:
  - id: school-a
    name: Springfield Elementary
    code: springfield
    isolation_level: strict
  - id: school-b
    name: Shelbyville High
    code: shelbyville
super_admin:
  email: root@platform.example
  default_tenant: school-a
`

const rootPassword = "Str0ng!Passw0rd"

func TestSeedTenants(t *testing.T) {
	c, err := config.Parse([]byte(seedYAML))
	require.NoError(t, err)

	repo := tenantrepofakes.NewFakeTenantRepo()
	require.NoError(t, seedTenants(repo, c.GetTenants()))

	a, err := repo.GetByCode("springfield")
	require.NoError(t, err)
	require.Equal(t, "school-a", a.ID)
	require.Equal(t, tenants.IsolationStrict, a.IsolationLevel)
	b, err := repo.Get("school-b")
	require.NoError(t, err)
	require.Equal(t, tenants.IsolationStandard, b.IsolationLevel)

	require.NoError(t, seedTenants(tenantrepofakes.NewFakeTenantRepo(), nil))
}

func TestSeededSuperAdminCanLogIn(t *testing.T) {
	ctx := context.Background()
	t.Setenv("SUPER_ADMIN_PASSWORD", rootPassword)
	c, err := config.Parse([]byte(seedYAML))
	require.NoError(t, err)

	tenantRepo := tenantrepofakes.NewFakeTenantRepo()
	credentials := fakecredentialstore.NewFakeCredentialStore()
	require.NoError(t, seedTenants(tenantRepo, c.GetTenants()))
	require.NoError(t, seedSuperAdmin(credentials, tenantRepo, c.GetSuperAdmin()))

	auditLog, err := audit.NewLog(fakeauditsink.NewFakeSink())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = auditLog.Close(ctx)
	})
	policy, err := lockout.NewPolicy(fakelockoutstore.NewFakeLockoutStore())
	require.NoError(t, err)
	gate, err := mfa.NewGate(fakemfarepo.NewFakeSecretRepo())
	require.NoError(t, err)
	contexts, err := tenantctx.NewManager(tenantRepo, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	manager, err := auth.NewSessionManager(
		auth.Repos{Credentials: credentials, Sessions: fakesessionrepo.NewFakeSessionRepo(), Tenants: tenantRepo},
		policy, gate, contexts, auditLog,
	)
	require.NoError(t, err)

	login := func(code string) (*auth.LoginResult, error) {
		return manager.Login(ctx, auth.LoginRequest{Email: "root@platform.example", Password: rootPassword, TenantCode: code})
	}

	result, err := login("")
	require.NoError(t, err)
	require.Equal(t, "school-a", result.TenantID)

	result, err = login("shelbyville")
	require.NoError(t, err)
	require.Equal(t, "school-b", result.TenantID)
}

func TestSeedSuperAdminRejects(t *testing.T) {
	repo := tenantrepofakes.NewFakeTenantRepo()
	credentials := fakecredentialstore.NewFakeCredentialStore()

	t.Run("weak password", func(t *testing.T) {
		err := seedSuperAdmin(credentials, repo, config.SuperAdminSeed{Email: "root@platform.example", Password: "short"})
		require.Error(t, err)
	})

	t.Run("unknown default tenant", func(t *testing.T) {
		err := seedSuperAdmin(credentials, repo, config.SuperAdminSeed{Email: "root@platform.example", Password: rootPassword, DefaultTenant: "school-z"})
		require.Error(t, err)
	})

	t.Run("nothing configured", func(t *testing.T) {
		require.NoError(t, seedSuperAdmin(credentials, repo, config.SuperAdminSeed{}))
	})
}
