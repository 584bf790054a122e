package tenantctx_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/school-auth/audit"
	"github.com/jrsteele09/school-auth/tenantctx"
	"github.com/jrsteele09/school-auth/tenants"
	tenantrepofakes "github.com/jrsteele09/school-auth/tenants/repofakes"
	"github.com/stretchr/testify/require"
)

var masterKey = []byte("0123456789abcdef0123456789abcdef")

type recorded struct {
	events []audit.SecurityEvent
	lock   sync.Mutex
}

func (r *recorded) Record(ctx context.Context, ev audit.SecurityEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, ev)
}

type testFixture struct {
	manager  *tenantctx.Manager
	recorder *recorded
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	repo := tenantrepofakes.NewFakeTenantRepo()
	require.NoError(t, repo.Upsert(&tenants.Tenant{ID: "school-a", Name: "School A", Code: "a", IsolationLevel: tenants.IsolationStrict}))
	require.NoError(t, repo.Upsert(&tenants.Tenant{ID: "school-b", Name: "School B", Code: "b"}))

	rec := &recorded{}
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	m, err := tenantctx.NewManager(repo, masterKey,
		tenantctx.WithRecorder(rec),
		tenantctx.WithNowTime(func() time.Time { return now }),
	)
	require.NoError(t, err)
	return &testFixture{manager: m, recorder: rec}
}

func TestNewManagerValidation(t *testing.T) {
	_, err := tenantctx.NewManager(nil, masterKey)
	require.Error(t, err)
	_, err = tenantctx.NewManager(tenantrepofakes.NewFakeTenantRepo(), []byte("short"))
	require.Error(t, err)
}

func TestInitAndVerify(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	tc, err := f.manager.Init(ctx, "s1", "school-a")
	require.NoError(t, err)
	require.Equal(t, "school-a", tc.TenantID)
	require.Equal(t, "School A", tc.TenantName)
	require.Equal(t, tenants.IsolationStrict, tc.IsolationLevel)
	require.Len(t, tc.EncryptionKey, 32)
	require.Len(t, tc.DataKey, 64)

	require.True(t, f.manager.Verify("s1", "school-a"))
	require.False(t, f.manager.Verify("s1", "school-b"))
	require.False(t, f.manager.Verify("s2", "school-a"))
	require.False(t, f.manager.Verify("s1", ""))

	_, err = f.manager.Init(ctx, "s1", "no-such-school")
	require.Error(t, err)
	require.True(t, f.manager.Verify("s1", "school-a"))

	_, err = f.manager.Init(ctx, "", "school-a")
	require.Error(t, err)
}

func TestSessionsAreIsolated(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	a, err := f.manager.Init(ctx, "session-a", "school-a")
	require.NoError(t, err)
	b, err := f.manager.Init(ctx, "session-b", "school-b")
	require.NoError(t, err)

	require.NotEqual(t, a.EncryptionKey, b.EncryptionKey)
	require.NotEqual(t, a.DataKey, b.DataKey)

	current, ok := f.manager.Current("session-a")
	require.True(t, ok)
	require.Equal(t, "school-a", current.TenantID)
	current, ok = f.manager.Current("session-b")
	require.True(t, ok)
	require.Equal(t, "school-b", current.TenantID)

	// Keys are deterministic per tenant.
	again, err := f.manager.Init(ctx, "session-c", "school-a")
	require.NoError(t, err)
	require.Equal(t, a.EncryptionKey, again.EncryptionKey)
	require.Equal(t, a.DataKey, again.DataKey)

	// Returned contexts are copies.
	a.EncryptionKey[0] ^= 0xff
	current, _ = f.manager.Current("session-a")
	require.Equal(t, again.EncryptionKey, current.EncryptionKey)
}

func TestReplaceEmitsEvent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.manager.Init(ctx, "s1", "school-a")
	require.NoError(t, err)
	require.Empty(t, f.recorder.events)

	_, err = f.manager.Init(ctx, "s1", "school-b")
	require.NoError(t, err)
	require.Len(t, f.recorder.events, 1)
	require.Equal(t, audit.EventTenantContextReplaced, f.recorder.events[0].Type)
	require.Equal(t, audit.SeverityMedium, f.recorder.events[0].Severity)
	require.True(t, f.manager.Verify("s1", "school-b"))
	require.False(t, f.manager.Verify("s1", "school-a"))
}

func TestClear(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	for _, sid := range []string{"a1", "a2"} {
		_, err := f.manager.Init(ctx, sid, "school-a")
		require.NoError(t, err)
	}
	_, err := f.manager.Init(ctx, "b1", "school-b")
	require.NoError(t, err)

	f.manager.Clear("a1")
	_, ok := f.manager.Current("a1")
	require.False(t, ok)

	require.Equal(t, 1, f.manager.ClearTenant("school-a"))
	require.Equal(t, 1, f.manager.Len())
	require.True(t, f.manager.Verify("b1", "school-b"))
}

func TestDeriveKey(t *testing.T) {
	require.Equal(t, "tenant:8:school-a:grades", tenantctx.DeriveKey("school-a", "grades"))
	require.NotEqual(t, tenantctx.DeriveKey("a", "b:c"), tenantctx.DeriveKey("a:b", "c"))
	require.NotEqual(t, tenantctx.DeriveKey("school-a", "k"), tenantctx.DeriveKey("school-b", "k"))
}

func TestHeadersAndContext(t *testing.T) {
	f := setupTestFixture(t)
	tc, err := f.manager.Init(context.Background(), "s1", "school-b")
	require.NoError(t, err)

	h := tenantctx.Headers(tc)
	require.Equal(t, "school-b", h[tenantctx.HeaderTenantID])
	require.Equal(t, tc.DataKey, h[tenantctx.HeaderTenantDataKey])
	require.Equal(t, "standard", h[tenantctx.HeaderIsolationLevel])

	_, ok := tenantctx.FromContext(context.Background())
	require.False(t, ok)
	got, ok := tenantctx.FromContext(tenantctx.WithContext(context.Background(), tc))
	require.True(t, ok)
	require.Equal(t, tc, got)
}
