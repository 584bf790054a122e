package tenantrepofakes_test

import (
	"testing"

	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/jrsteele09/school-auth/tenants"
	tenantrepofakes "github.com/jrsteele09/school-auth/tenants/repofakes"
	"github.com/stretchr/testify/require"
)

func TestFakeTenantRepo(t *testing.T) {
	repo := tenantrepofakes.NewFakeTenantRepo()
	require.NoError(t, repo.Upsert(&tenants.Tenant{ID: "school-a", Name: "School A", Code: "SchoolA"}))
	require.NoError(t, repo.Upsert(&tenants.Tenant{ID: "school-b", Name: "School B", Code: "schoolb", IsolationLevel: tenants.IsolationStrict}))

	t.Run("get by code is case insensitive", func(t *testing.T) {
		tenant, err := repo.GetByCode("schoola")
		require.NoError(t, err)
		require.Equal(t, "school-a", tenant.ID)
		require.Equal(t, tenants.IsolationStandard, tenant.Isolation())
	})

	t.Run("duplicate code rejected", func(t *testing.T) {
		err := repo.Upsert(&tenants.Tenant{ID: "school-c", Code: "SCHOOLA"})
		require.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})

	t.Run("list paginates", func(t *testing.T) {
		list, err := repo.List(0, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, "school-a", list[0].ID)

		list, err = repo.List(1, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, "school-b", list[0].ID)

		list, err = repo.List(5, 10)
		require.NoError(t, err)
		require.Empty(t, list)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete("school-b"))
		_, err := repo.Get("school-b")
		require.ErrorIs(t, err, apperrors.ErrTenantNotFound)
		_, err = repo.GetByCode("schoolb")
		require.ErrorIs(t, err, apperrors.ErrTenantNotFound)
	})
}

func TestParseIsolationLevel(t *testing.T) {
	l, err := tenants.ParseIsolationLevel("strict")
	require.NoError(t, err)
	require.Equal(t, tenants.IsolationStrict, l)

	l, err = tenants.ParseIsolationLevel("")
	require.NoError(t, err)
	require.Equal(t, tenants.IsolationStandard, l)

	_, err = tenants.ParseIsolationLevel("paranoid")
	require.Error(t, err)
}
