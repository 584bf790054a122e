// Package audit is the append-only security audit trail.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/school-auth/identity"
)

// Severity of a security event
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// EventType names a security-relevant action
type EventType string

const (
	EventLoginSuccess              EventType = "login_success"
	EventLoginFailed               EventType = "login_failed"
	EventAccountLocked             EventType = "account_locked"
	EventMFARequired               EventType = "mfa_required"
	EventMFAFailed                 EventType = "mfa_failed"
	EventMFAEnabled                EventType = "mfa_enabled"
	EventRecoveryCodeUsed          EventType = "recovery_code_used"
	EventLogout                    EventType = "logout"
	EventSessionExpired            EventType = "session_expired"
	EventSessionRevoked            EventType = "session_revoked"
	EventSuspiciousActivity        EventType = "suspicious_activity"
	EventTenantContextReplaced     EventType = "tenant_context_replaced"
	EventPasswordChanged           EventType = "password_changed"
	EventPasswordChangeFailed      EventType = "password_change_failed"
	EventAuditQuery                EventType = "audit_query"
	EventDataExport                EventType = "data_export"
	EventDataExportDenied          EventType = "data_export_denied"
	EventErasureConfirmationIssued EventType = "erasure_confirmation_issued"
	EventTenantDataErasure         EventType = "tenant_data_erasure"
	EventTenantDataErasureDenied   EventType = "tenant_data_erasure_denied"
)

var (
	// ErrSinkUnavailable is internal only; callers never show it to end users.
	ErrSinkUnavailable = errors.New("audit sink unavailable")
	ErrForbidden       = errors.New("not authorized to query audit events")
	ErrClosed          = errors.New("audit log closed")
)

// SecurityEvent is an immutable record of a security-relevant action.
type SecurityEvent struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	Type       EventType `json:"type"`
	IdentityID string    `json:"identity_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Detail     string    `json:"detail,omitempty"`
	Severity   Severity  `json:"severity"`
}

// Requester is the authenticated principal asking for audit data.
type Requester struct {
	IdentityID string
	TenantID   string
	Role       identity.RoleType
}

// Filter selects events from a sink. Results are in chronological order.
type Filter struct {
	TenantID   string // required unless AllTenants
	AllTenants bool
	Types      []EventType
	Since      time.Time
	Limit      int // zero means no limit
}

// Matches reports whether ev passes the filter
func (f Filter) Matches(ev SecurityEvent) bool {
	if !f.AllTenants && ev.TenantID != f.TenantID {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// Sink is the durable store behind the audit log.
type Sink interface {
	Append(ctx context.Context, ev SecurityEvent) error
	List(ctx context.Context, filter Filter) ([]SecurityEvent, error)
}

// Recorder is the write side of the log, accepted by components that only emit events.
type Recorder interface {
	Record(ctx context.Context, ev SecurityEvent)
}
