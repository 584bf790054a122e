package sessions

import "time"

// Repo stores authenticated sessions keyed by token digest.
type Repo interface {
	// Upsert creates or replaces a session
	Upsert(session *Session) error

	// Get returns apperrors.ErrNotFound for unknown ids
	Get(sessionID string) (*Session, error)

	Delete(sessionID string) error

	// Touch records activity on a session
	Touch(sessionID string, at time.Time) error

	// Revoke marks one session revoked. The next Verify tears it down.
	Revoke(sessionID, reason string) error

	// RevokeByIdentity revokes every live session of the identity except
	// exceptSessionID and returns the ids revoked.
	RevokeByIdentity(identityID, reason, exceptSessionID string) ([]string, error)

	// RevokeByTenant revokes every live session of the tenant and returns the ids revoked.
	RevokeByTenant(tenantID, reason string) ([]string, error)

	ListByTenant(tenantID string) ([]*Session, error)

	// DeleteExpired removes sessions whose lifetime ended at or before now
	// and returns them.
	DeleteExpired(now time.Time) ([]*Session, error)

	// DeleteTenant removes every session of the tenant.
	DeleteTenant(tenantID string) (int, error)
}
