package fakelockoutstore

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/jrsteele09/school-auth/lockout"
)

var _ lockout.Store = (*FakeLockoutStore)(nil)

// FakeLockoutStore keeps counters in a mutex-guarded map. Suitable for tests and
// single-instance deployments only.
type FakeLockoutStore struct {
	records map[string]lockout.Record
	lock    sync.Mutex
}

func NewFakeLockoutStore() *FakeLockoutStore {
	return &FakeLockoutStore{
		records: make(map[string]lockout.Record),
	}
}

func (s *FakeLockoutStore) Get(ctx context.Context, key string) (*lockout.Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &rec, nil
}

func (s *FakeLockoutStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (*lockout.Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, ok := s.records[key]
	if !ok || !rec.WindowStartedAt.After(now.Add(-window)) {
		rec = lockout.Record{Key: key, WindowStartedAt: now}
	}
	rec.Count++
	rec.LastFailureAt = now
	s.records[key] = rec
	return &rec, nil
}

func (s *FakeLockoutStore) Delete(ctx context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.records, key)
	return nil
}

func (s *FakeLockoutStore) DeleteIfStartedBefore(ctx context.Context, key string, cutoff time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if rec, ok := s.records[key]; ok && !rec.WindowStartedAt.After(cutoff) {
		delete(s.records, key)
	}
	return nil
}
