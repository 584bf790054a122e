package sessions

import (
	"time"

	"github.com/jrsteele09/school-auth/audit"
	"github.com/jrsteele09/school-auth/identity"
)

// Session is an authenticated login. ID is the hex SHA-256 of the opaque
// bearer token; the token itself is never stored.
type Session struct {
	ID                string            `json:"id"`
	IdentityID        string            `json:"identity_id"`
	Email             string            `json:"email"`
	TenantID          string            `json:"tenant_id"`
	Role              identity.RoleType `json:"role"`
	ClientIP          string            `json:"client_ip,omitempty"`
	UserAgent         string            `json:"user_agent,omitempty"`
	DeviceFingerprint string            `json:"device_fingerprint,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	LastActivityAt    time.Time         `json:"last_activity_at"`
	ExpiresAt         time.Time         `json:"expires_at"`
	IsSecure          bool              `json:"is_secure"`
	MFAVerified       bool              `json:"mfa_verified"`
	Revoked           bool              `json:"revoked"`
	RevokedReason     string            `json:"revoked_reason,omitempty"`
}

// Expired reports whether the session lifetime has run out at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Requester is the principal acting through this session
func (s *Session) Requester() audit.Requester {
	return audit.Requester{
		IdentityID: s.IdentityID,
		TenantID:   s.TenantID,
		Role:       s.Role,
	}
}
