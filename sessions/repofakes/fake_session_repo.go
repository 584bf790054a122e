package fakesessionrepo

import (
	"sort"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/jrsteele09/school-auth/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string]*sessions.Session
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
	}
}

func (sr *FakeSessionRepo) Upsert(session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	cp := *session
	sr.sessions[session.ID] = &cp
	return nil
}

func (sr *FakeSessionRepo) Get(sessionID string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	session, ok := sr.sessions[sessionID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (sr *FakeSessionRepo) Delete(sessionID string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.sessions[sessionID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(sr.sessions, sessionID)
	return nil
}

func (sr *FakeSessionRepo) Touch(sessionID string, at time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	session, ok := sr.sessions[sessionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if at.After(session.LastActivityAt) {
		session.LastActivityAt = at
	}
	return nil
}

func (sr *FakeSessionRepo) Revoke(sessionID, reason string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	session, ok := sr.sessions[sessionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	session.Revoked = true
	session.RevokedReason = reason
	return nil
}

func (sr *FakeSessionRepo) RevokeByIdentity(identityID, reason, exceptSessionID string) ([]string, error) {
	return sr.revokeWhere(reason, func(s *sessions.Session) bool {
		return s.IdentityID == identityID && s.ID != exceptSessionID
	}), nil
}

func (sr *FakeSessionRepo) RevokeByTenant(tenantID, reason string) ([]string, error) {
	return sr.revokeWhere(reason, func(s *sessions.Session) bool {
		return s.TenantID == tenantID
	}), nil
}

func (sr *FakeSessionRepo) revokeWhere(reason string, match func(*sessions.Session) bool) []string {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	ids := make([]string, 0)
	for id, s := range sr.sessions {
		if s.Revoked || !match(s) {
			continue
		}
		s.Revoked = true
		s.RevokedReason = reason
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (sr *FakeSessionRepo) ListByTenant(tenantID string) ([]*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	list := make([]*sessions.Session, 0)
	for _, s := range sr.sessions {
		if s.TenantID == tenantID {
			cp := *s
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (sr *FakeSessionRepo) DeleteExpired(now time.Time) ([]*sessions.Session, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	removed := make([]*sessions.Session, 0)
	for id, s := range sr.sessions {
		if s.Expired(now) {
			removed = append(removed, s)
			delete(sr.sessions, id)
		}
	}
	return removed, nil
}

func (sr *FakeSessionRepo) DeleteTenant(tenantID string) (int, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	n := 0
	for id, s := range sr.sessions {
		if s.TenantID == tenantID {
			delete(sr.sessions, id)
			n++
		}
	}
	return n, nil
}
