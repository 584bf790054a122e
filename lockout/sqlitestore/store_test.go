package sqlitestore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/school-auth/internal/database"
	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/jrsteele09/school-auth/lockout"
	"github.com/jrsteele09/school-auth/lockout/sqlitestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "lockout.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlitestore.New(db.DB)
}

func TestIncrementWindow(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	rec, err := s.Increment(ctx, "k", start, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, rec.Count)
	require.True(t, rec.WindowStartedAt.Equal(start))

	rec, err = s.Increment(ctx, "k", start.Add(5*time.Minute), 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, rec.Count)
	require.True(t, rec.WindowStartedAt.Equal(start))
	require.True(t, rec.LastFailureAt.Equal(start.Add(5*time.Minute)))

	// Window elapsed: a new one starts.
	later := start.Add(15 * time.Minute)
	rec, err = s.Increment(ctx, "k", later, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, rec.Count)
	require.True(t, rec.WindowStartedAt.Equal(later))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestDeleteIfStartedBefore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	_, err := s.Increment(ctx, "k", start, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.DeleteIfStartedBefore(ctx, "k", start.Add(-time.Second)))
	_, err = s.Get(ctx, "k")
	require.NoError(t, err, "newer window must survive")

	require.NoError(t, s.DeleteIfStartedBefore(ctx, "k", start))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.Increment(ctx, "k", start, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPolicyOverSQLiteConcurrent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	p, err := lockout.NewPolicy(s, lockout.WithMaxAttempts(5))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.RecordFailure(ctx, "school-a|alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := p.Check(ctx, "school-a|alice")
	require.NoError(t, err)
	require.False(t, st.Allowed)
	require.Equal(t, 20, st.Count)

	require.NoError(t, p.Reset(ctx, "school-a|alice"))
	st, err = p.Check(ctx, "school-a|alice")
	require.NoError(t, err)
	require.True(t, st.Allowed)
}
