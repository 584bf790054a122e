package mfa_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/school-auth/audit"
	"github.com/jrsteele09/school-auth/identity"
	"github.com/jrsteele09/school-auth/mfa"
	fakemfarepo "github.com/jrsteele09/school-auth/mfa/repofake"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	events []audit.SecurityEvent
	lock   sync.Mutex
}

func (r *recorded) Record(ctx context.Context, ev audit.SecurityEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorded) types() []audit.EventType {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]audit.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type testFixture struct {
	gate     *mfa.Gate
	repo     *fakemfarepo.FakeSecretRepo
	recorder *recorded
	now      time.Time
	ident    *identity.Identity
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		repo:     fakemfarepo.NewFakeSecretRepo(),
		recorder: &recorded{},
		now:      time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		ident:    &identity.Identity{ID: "alice", Email: "alice@school-a.test", TenantID: "school-a", Role: identity.RoleTeacher},
	}
	gate, err := mfa.NewGate(f.repo,
		mfa.WithIssuer("Test Schools"),
		mfa.WithRecorder(f.recorder),
		mfa.WithNowTime(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	f.gate = gate
	return f
}

func TestNewGateRequiresRepo(t *testing.T) {
	_, err := mfa.NewGate(nil)
	require.Error(t, err)
}

func TestEnable(t *testing.T) {
	f := setupTestFixture(t)
	enrollment, err := f.gate.Enable(context.Background(), f.ident)
	require.NoError(t, err)

	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.ProvisioningURL, "otpauth://totp/")
	require.Contains(t, enrollment.ProvisioningURL, "Test%20Schools")
	require.Len(t, enrollment.RecoveryCodes, mfa.RecoveryCodeCount)

	pattern := regexp.MustCompile(`^[a-z2-7]{5}-[a-z2-7]{5}$`)
	seen := map[string]bool{}
	for _, code := range enrollment.RecoveryCodes {
		require.Regexp(t, pattern, code)
		require.False(t, seen[code])
		seen[code] = true
	}

	stored, err := f.repo.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "school-a", stored.TenantID)
	for _, d := range stored.RecoveryDigests {
		require.NotContains(t, enrollment.RecoveryCodes, d)
	}
	require.Equal(t, []audit.EventType{audit.EventMFAEnabled}, f.recorder.types())
}

func TestIsRequired(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	required, err := f.gate.IsRequired(ctx, f.ident, "")
	require.NoError(t, err)
	require.False(t, required)

	flagged := *f.ident
	flagged.MFAEnabled = true
	required, err = f.gate.IsRequired(ctx, &flagged, "")
	require.NoError(t, err)
	require.True(t, required)

	required, err = f.gate.IsRequired(ctx, &flagged, "123456")
	require.NoError(t, err)
	require.False(t, required)

	_, err = f.gate.Enable(ctx, f.ident)
	require.NoError(t, err)
	required, err = f.gate.IsRequired(ctx, f.ident, " ")
	require.NoError(t, err)
	require.True(t, required)

	f.repo.SetFailure(errors.New("store offline"))
	_, err = f.gate.IsRequired(ctx, f.ident, "")
	require.Error(t, err)
}

func TestValidateTOTP(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	enrollment, err := f.gate.Enable(ctx, f.ident)
	require.NoError(t, err)

	// One step of skew is accepted.
	prev, err := totp.GenerateCode(enrollment.Secret, f.now.Add(-30*time.Second))
	require.NoError(t, err)
	ok, err := f.gate.Validate(ctx, "alice", prev)
	require.NoError(t, err)
	require.True(t, ok)

	code, err := totp.GenerateCode(enrollment.Secret, f.now)
	require.NoError(t, err)
	ok, err = f.gate.Validate(ctx, "alice", code)
	require.NoError(t, err)
	require.True(t, ok)

	stale, err := totp.GenerateCode(enrollment.Secret, f.now.Add(-5*time.Minute))
	require.NoError(t, err)
	ok, err = f.gate.Validate(ctx, "alice", stale)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.gate.Validate(ctx, "nobody", code)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTOTPCodeSingleUse(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	enrollment, err := f.gate.Enable(ctx, f.ident)
	require.NoError(t, err)

	next, err := totp.GenerateCode(enrollment.Secret, f.now.Add(30*time.Second))
	require.NoError(t, err)
	current, err := totp.GenerateCode(enrollment.Secret, f.now)
	require.NoError(t, err)
	prev, err := totp.GenerateCode(enrollment.Secret, f.now.Add(-30*time.Second))
	require.NoError(t, err)

	ok, err := f.gate.Validate(ctx, "alice", current)
	require.NoError(t, err)
	require.True(t, ok)

	// The same code is refused for the rest of its skew window.
	ok, err = f.gate.Validate(ctx, "alice", current)
	require.NoError(t, err)
	require.False(t, ok)
	f.now = f.now.Add(20 * time.Second)
	ok, err = f.gate.Validate(ctx, "alice", current)
	require.NoError(t, err)
	require.False(t, ok)

	// So is any code from an earlier step.
	ok, err = f.gate.Validate(ctx, "alice", prev)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.gate.Validate(ctx, "alice", next)
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := f.repo.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, f.now.Add(10*time.Second).Unix()/30, stored.LastTOTPStep)

	// Concurrent submissions of one fresh code succeed once.
	f.now = f.now.Add(90 * time.Second)
	fresh, err := totp.GenerateCode(enrollment.Secret, f.now)
	require.NoError(t, err)
	var wg sync.WaitGroup
	results := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.gate.Validate(ctx, "alice", fresh)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)
	accepted := 0
	for ok := range results {
		if ok {
			accepted++
		}
	}
	require.Equal(t, 1, accepted)

	f.repo.SetFailure(errors.New("store offline"))
	_, err = f.gate.Validate(ctx, "alice", fresh)
	require.Error(t, err)
}

func TestRecoveryCodeSingleUse(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	enrollment, err := f.gate.Enable(ctx, f.ident)
	require.NoError(t, err)
	code := enrollment.RecoveryCodes[3]

	var wg sync.WaitGroup
	results := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.gate.Validate(ctx, "alice", code)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	for ok := range results {
		if ok {
			accepted++
		}
	}
	require.Equal(t, 1, accepted)

	stored, err := f.repo.Get(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, stored.RecoveryDigests, mfa.RecoveryCodeCount-1)
	require.Contains(t, f.recorder.types(), audit.EventRecoveryCodeUsed)

	// Codes are matched case-insensitively.
	ok, err := f.gate.Validate(ctx, "alice", " "+strings.ToUpper(enrollment.RecoveryCodes[0])+" ")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.gate.Validate(ctx, "alice", "aaaaa-aaaaa")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDisable(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.gate.Enable(ctx, f.ident)
	require.NoError(t, err)

	require.NoError(t, f.gate.Disable(ctx, "alice"))
	require.NoError(t, f.gate.Disable(ctx, "alice"))
	enabled, err := f.gate.Enabled(ctx, f.ident)
	require.NoError(t, err)
	require.False(t, enabled)
}
