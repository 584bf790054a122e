package boundary_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/school-auth/boundary"
	"github.com/jrsteele09/school-auth/tenantctx"
	"github.com/jrsteele09/school-auth/tenants"
	tenantrepofakes "github.com/jrsteele09/school-auth/tenants/repofakes"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	schoolA *tenantctx.Context
	schoolB *tenantctx.Context
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	repo := tenantrepofakes.NewFakeTenantRepo()
	require.NoError(t, repo.Upsert(&tenants.Tenant{ID: "school-a", Name: "School A", Code: "a"}))
	require.NoError(t, repo.Upsert(&tenants.Tenant{ID: "school-b", Name: "School B", Code: "b"}))
	m, err := tenantctx.NewManager(repo, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	a, err := m.Init(context.Background(), "s-a", "school-a")
	require.NoError(t, err)
	b, err := m.Init(context.Background(), "s-b", "school-b")
	require.NoError(t, err)
	return &testFixture{schoolA: a, schoolB: b}
}

func TestEncryptRoundTrip(t *testing.T) {
	f := setupTestFixture(t)
	for _, plaintext := range [][]byte{[]byte(`{"grade":"A"}`), {}, make([]byte, 4096)} {
		ct, err := boundary.Encrypt(plaintext, f.schoolA)
		require.NoError(t, err)
		require.NotEqual(t, plaintext, ct)

		pt, err := boundary.Decrypt(ct, f.schoolA)
		require.NoError(t, err)
		require.Equal(t, len(plaintext), len(pt))
		if len(plaintext) > 0 {
			require.Equal(t, plaintext, pt)
		}
	}

	// Fresh nonce per call.
	c1, err := boundary.Encrypt([]byte("same"), f.schoolA)
	require.NoError(t, err)
	c2, err := boundary.Encrypt([]byte("same"), f.schoolA)
	require.NoError(t, err)
	require.NotEqual(t, c1, c2)
}

func TestDecryptFailsClosed(t *testing.T) {
	f := setupTestFixture(t)
	ct, err := boundary.Encrypt([]byte(`{"tenantId":"school-a","mark":97}`), f.schoolA)
	require.NoError(t, err)

	t.Run("other tenant", func(t *testing.T) {
		pt, err := boundary.Decrypt(ct, f.schoolB)
		require.ErrorIs(t, err, boundary.ErrDecryptionFailed)
		require.Nil(t, pt)
	})

	t.Run("same key different tenant id", func(t *testing.T) {
		forged := *f.schoolA
		forged.TenantID = "school-b"
		_, err := boundary.Decrypt(ct, &forged)
		require.ErrorIs(t, err, boundary.ErrDecryptionFailed)
	})

	t.Run("tampered", func(t *testing.T) {
		for _, i := range []int{0, 1, 30, len(ct) - 1} {
			bad := append([]byte(nil), ct...)
			bad[i] ^= 0x01
			pt, err := boundary.Decrypt(bad, f.schoolA)
			require.ErrorIs(t, err, boundary.ErrDecryptionFailed)
			require.Nil(t, pt)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := boundary.Decrypt(ct[:10], f.schoolA)
		require.ErrorIs(t, err, boundary.ErrDecryptionFailed)
	})

	t.Run("no context", func(t *testing.T) {
		_, err := boundary.Decrypt(ct, nil)
		require.ErrorIs(t, err, boundary.ErrNoTenantContext)
	})
}

func TestValidateBoundary(t *testing.T) {
	f := setupTestFixture(t)
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"own tenant", `{"tenantId":"school-a","name":"x"}`, false},
		{"no marker", `{"name":"x","scores":[1,2,3]}`, false},
		{"foreign tenant", `{"tenantId":"school-b"}`, true},
		{"foreign snake case", `{"tenant_id":"school-b"}`, true},
		{"foreign school id", `{"schoolId":"school-b"}`, true},
		{"nested foreign", `{"class":{"students":[{"school_id":"school-a"},{"school_id":"school-b"}]}}`, true},
		{"foreign tenant key", `{"tenant":"school-b"}`, true},
		{"non string marker", `{"tenant":{"id":"school-a"}}`, false},
		{"array root", `[{"tenantId":"school-a"}]`, false},
		{"not json", `tenantId=school-b`, true},
		{"second document", `{"tenantId":"school-a"} {"tenantId":"school-b","name":"x"}`, true},
		{"ndjson", "{\"tenantId\":\"school-a\"}\n{\"tenantId\":\"school-a\"}\n", true},
		{"trailing garbage", `{"tenantId":"school-a"}garbage`, true},
		{"trailing whitespace", "{\"tenantId\":\"school-a\"}\n\t ", false},
		{"numeric foreign id", `{"tenantId":42}`, true},
		{"boolean marker", `{"tenant":true}`, true},
		{"null marker", `{"tenantId":null}`, false},
		{"go field name", `{"TenantID":"school-b"}`, true},
		{"mixed case", `{"tenantID":"school-b"}`, true},
		{"upper snake", `{"SCHOOL_ID":"school-b"}`, true},
		{"go field name own tenant", `{"TenantID":"school-a"}`, false},
		{"empty", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := boundary.ValidateBoundary([]byte(tt.data), f.schoolA)
			if tt.wantErr {
				require.ErrorIs(t, err, boundary.ErrBoundaryViolation)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSealOpenJSON(t *testing.T) {
	f := setupTestFixture(t)
	type record struct {
		TenantID string `json:"tenantId"`
		Pupil    string `json:"pupil"`
	}

	ct, err := boundary.SealJSON(record{TenantID: "school-a", Pupil: "Sam"}, f.schoolA)
	require.NoError(t, err)

	var got record
	require.NoError(t, boundary.OpenJSON(ct, f.schoolA, &got))
	require.Equal(t, "Sam", got.Pupil)

	require.ErrorIs(t, boundary.OpenJSON(ct, f.schoolB, &got), boundary.ErrDecryptionFailed)

	_, err = boundary.SealJSON(record{TenantID: "school-b"}, f.schoolA)
	require.ErrorIs(t, err, boundary.ErrBoundaryViolation)
}
