// Package auth owns the login lifecycle: credential and MFA checks, lockout,
// session issue and verification, and the tenant binding of every session.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/school-auth/audit"
	"github.com/jrsteele09/school-auth/identity"
	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/jrsteele09/school-auth/lockout"
	"github.com/jrsteele09/school-auth/mfa"
	"github.com/jrsteele09/school-auth/sessions"
	"github.com/jrsteele09/school-auth/tenantctx"
	"github.com/jrsteele09/school-auth/tenants"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultCredentialTimeout  = 5 * time.Second
	DefaultSessionLifetime    = 8 * time.Hour
	DefaultRememberMeLifetime = 30 * 24 * time.Hour
	DefaultAuditSyncTimeout   = 2 * time.Second

	sessionTokenBytes = 32
)

// AuditLog is the part of audit.Log the manager writes to. Incident events
// go through RecordSync so they are durable before the caller is answered.
type AuditLog interface {
	Record(ctx context.Context, ev audit.SecurityEvent)
	RecordSync(ctx context.Context, ev audit.SecurityEvent) error
}

// Repos holds the external stores the SessionManager consults
type Repos struct {
	Credentials identity.CredentialStore
	Sessions    sessions.Repo
	Tenants     tenants.Repo
}

// LoginRequest is one login attempt.
type LoginRequest struct {
	Email             string
	Password          string
	TenantCode        string // optional school code typed at login
	MFAToken          string // TOTP or recovery code
	RememberMe        bool
	ClientIP          string
	UserAgent         string
	DeviceFingerprint string
	IsSecure          bool
}

// LoginResult is returned on success. Token is the only copy of the bearer
// token; the server keeps its digest.
type LoginResult struct {
	Token              string
	Session            *sessions.Session
	Role               identity.RoleType
	TenantID           string
	MustChangePassword bool
	Context            *tenantctx.Context
}

// RequestMeta describes the request presenting a session token.
type RequestMeta struct {
	ClientIP          string
	UserAgent         string
	DeviceFingerprint string
}

// SessionManager authenticates identities and guards their sessions.
type SessionManager struct {
	repos              Repos
	lockout            *lockout.Policy
	mfa                *mfa.Gate
	contexts           *tenantctx.Manager
	audit              AuditLog
	validator          *Validator
	credentialTimeout  time.Duration
	sessionLifetime    time.Duration
	rememberMeLifetime time.Duration
	auditSyncTimeout   time.Duration
	minPasswordLength  int
	nowTime            func() time.Time
}

// SessionManagerOption defines a function type to modify the SessionManager instance.
type SessionManagerOption func(*SessionManager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SessionManagerOption {
	return func(sm *SessionManager) {
		sm.nowTime = nowFunc
	}
}

// WithCredentialTimeout bounds each credential store and MFA check.
func WithCredentialTimeout(d time.Duration) SessionManagerOption {
	return func(sm *SessionManager) {
		if d > 0 {
			sm.credentialTimeout = d
		}
	}
}

// WithSessionLifetimes sets the default and remember-me session lifetimes.
func WithSessionLifetimes(standard, rememberMe time.Duration) SessionManagerOption {
	return func(sm *SessionManager) {
		if standard > 0 {
			sm.sessionLifetime = standard
		}
		if rememberMe > 0 {
			sm.rememberMeLifetime = rememberMe
		}
	}
}

func WithMinPasswordLength(n int) SessionManagerOption {
	return func(sm *SessionManager) {
		if n > 0 {
			sm.minPasswordLength = n
		}
	}
}

// WithAuditSyncTimeout bounds how long a durable audit write may hold a response.
func WithAuditSyncTimeout(d time.Duration) SessionManagerOption {
	return func(sm *SessionManager) {
		if d > 0 {
			sm.auditSyncTimeout = d
		}
	}
}

// NewSessionManager initializes a SessionManager with required dependencies.
func NewSessionManager(
	repos Repos,
	policy *lockout.Policy,
	gate *mfa.Gate,
	contexts *tenantctx.Manager,
	auditLog AuditLog,
	options ...SessionManagerOption,
) (*SessionManager, error) {
	if repos.Credentials == nil {
		return nil, errors.New("[NewSessionManager] credential store is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewSessionManager] sessions repo is required")
	}
	if repos.Tenants == nil {
		return nil, errors.New("[NewSessionManager] tenants repo is required")
	}
	if policy == nil {
		return nil, errors.New("[NewSessionManager] lockout policy is required")
	}
	if gate == nil {
		return nil, errors.New("[NewSessionManager] mfa gate is required")
	}
	if contexts == nil {
		return nil, errors.New("[NewSessionManager] tenant context manager is required")
	}
	if auditLog == nil {
		return nil, errors.New("[NewSessionManager] audit log is required")
	}

	sm := &SessionManager{
		repos:              repos,
		lockout:            policy,
		mfa:                gate,
		contexts:           contexts,
		audit:              auditLog,
		validator:          NewValidator(),
		credentialTimeout:  DefaultCredentialTimeout,
		sessionLifetime:    DefaultSessionLifetime,
		rememberMeLifetime: DefaultRememberMeLifetime,
		auditSyncTimeout:   DefaultAuditSyncTimeout,
		minPasswordLength:  identity.DefaultMinPasswordLength,
		nowTime:            time.Now,
	}
	for _, opt := range options {
		opt(sm)
	}
	return sm, nil
}

// LockoutKey is the lockout identity for an email address.
func LockoutKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SessionID is the stored digest of a bearer token
func SessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newSessionToken() (token, sessionID string, err error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, SessionID(token), nil
}

// Login authenticates req. Only a definitive denial from the credential store
// or a wrong second factor counts against the lockout budget.
func (sm *SessionManager) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := sm.validator.ValidateLoginRequest(req); err != nil {
		return nil, errors.Wrap(ErrInvalidCredentials, err.Error())
	}

	key := LockoutKey(req.Email)
	base := audit.SecurityEvent{
		TenantID:  sm.tenantHint(req.TenantCode),
		IP:        req.ClientIP,
		UserAgent: req.UserAgent,
	}

	status, err := sm.lockout.Check(ctx, key)
	if err != nil {
		log.Err(err).Msg("lockout check failed")
		return nil, errors.Wrap(ErrAuthUnavailable, "[SessionManager.Login] lockout check")
	}
	if !status.Allowed {
		ev := base
		ev.Type = audit.EventLoginFailed
		ev.Severity = audit.SeverityHigh
		ev.Detail = fmt.Sprintf("rejected while locked, %d failures", status.Count)
		sm.recordSync(ctx, ev)
		return nil, &LockedError{RetryAfter: status.RetryAfter}
	}

	credCtx, cancel := context.WithTimeout(ctx, sm.credentialTimeout)
	ident, err := sm.repos.Credentials.ValidateCredentials(credCtx, req.Email, req.Password)
	cancel()
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return nil, sm.failedAttempt(ctx, key, base, audit.EventLoginFailed, "invalid credentials", ErrInvalidCredentials)
	}
	if err != nil {
		log.Warn().Err(err).Msg("credential store unavailable")
		return nil, errors.Wrap(ErrAuthUnavailable, "[SessionManager.Login] validate credentials")
	}
	base.IdentityID = ident.ID
	base.TenantID = ident.TenantID

	if ident.Blocked {
		ev := base
		ev.Type = audit.EventLoginFailed
		ev.Severity = audit.SeverityMedium
		ev.Detail = "identity blocked"
		sm.audit.Record(ctx, ev)
		return nil, ErrInvalidCredentials
	}

	tenantID, err := sm.resolveTenant(ident, req.TenantCode)
	if errors.Is(err, ErrInvalidCredentials) {
		return nil, sm.failedAttempt(ctx, key, base, audit.EventLoginFailed, "tenant does not match identity", ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}
	base.TenantID = tenantID

	required, err := sm.mfa.IsRequired(ctx, ident, req.MFAToken)
	if err != nil {
		log.Warn().Err(err).Str("identity_id", ident.ID).Msg("mfa store unavailable")
		return nil, errors.Wrap(ErrAuthUnavailable, "[SessionManager.Login] mfa required check")
	}
	if required {
		ev := base
		ev.Type = audit.EventMFARequired
		ev.Severity = audit.SeverityLow
		sm.audit.Record(ctx, ev)
		return nil, ErrMFARequired
	}

	mfaVerified := false
	if strings.TrimSpace(req.MFAToken) != "" {
		enabled, err := sm.mfa.Enabled(ctx, ident)
		if err != nil {
			return nil, errors.Wrap(ErrAuthUnavailable, "[SessionManager.Login] mfa enabled check")
		}
		if enabled {
			mfaCtx, cancel := context.WithTimeout(ctx, sm.credentialTimeout)
			ok, err := sm.mfa.Validate(mfaCtx, ident.ID, req.MFAToken)
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("identity_id", ident.ID).Msg("mfa validation unavailable")
				return nil, errors.Wrap(ErrAuthUnavailable, "[SessionManager.Login] mfa validate")
			}
			if !ok {
				return nil, sm.failedAttempt(ctx, key, base, audit.EventMFAFailed, "invalid mfa token", ErrInvalidMFAToken)
			}
			mfaVerified = true
		}
	}

	return sm.issueSession(ctx, ident, tenantID, key, mfaVerified, req)
}

// tenantHint attributes events to the typed tenant before the identity is known.
func (sm *SessionManager) tenantHint(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tenant, err := sm.repos.Tenants.GetByCode(code)
	if err != nil {
		return ""
	}
	return tenant.ID
}

// resolveTenant picks the tenant the session will be bound to. Super-admins
// may enter any tenant; everyone else only their own.
func (sm *SessionManager) resolveTenant(ident *identity.Identity, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		if ident.TenantID == "" {
			return "", ErrTenantRequired
		}
		return ident.TenantID, nil
	}

	tenant, err := sm.repos.Tenants.GetByCode(code)
	if apperrors.Is(err, apperrors.ErrTenantNotFound) || apperrors.Is(err, apperrors.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		log.Warn().Err(err).Msg("tenant lookup failed")
		return "", errors.Wrap(ErrAuthUnavailable, "[SessionManager.resolveTenant]")
	}
	if !ident.IsSuperAdmin() && tenant.ID != ident.TenantID {
		return "", ErrInvalidCredentials
	}
	return tenant.ID, nil
}

func (sm *SessionManager) issueSession(ctx context.Context, ident *identity.Identity, tenantID, key string, mfaVerified bool, req LoginRequest) (*LoginResult, error) {
	token, sessionID, err := newSessionToken()
	if err != nil {
		return nil, errors.Wrap(err, "[SessionManager.issueSession] generating token")
	}

	lifetime := sm.sessionLifetime
	if ident.SessionLifetime > 0 {
		lifetime = ident.SessionLifetime
	}
	if req.RememberMe {
		lifetime = sm.rememberMeLifetime
	}

	now := sm.nowTime().UTC()
	session := &sessions.Session{
		ID:                sessionID,
		IdentityID:        ident.ID,
		Email:             ident.Email,
		TenantID:          tenantID,
		Role:              ident.Role,
		ClientIP:          req.ClientIP,
		UserAgent:         req.UserAgent,
		DeviceFingerprint: req.DeviceFingerprint,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(lifetime),
		IsSecure:          req.IsSecure,
		MFAVerified:       mfaVerified,
	}
	if err := sm.repos.Sessions.Upsert(session); err != nil {
		return nil, errors.Wrap(ErrAuthUnavailable, "[SessionManager.issueSession] storing session: "+err.Error())
	}

	tc, err := sm.contexts.Init(ctx, sessionID, tenantID)
	if err != nil {
		_ = sm.repos.Sessions.Delete(sessionID)
		log.Err(err).Str("tenant_id", tenantID).Msg("tenant context init failed")
		return nil, errors.Wrap(ErrAuthUnavailable, "[SessionManager.issueSession] tenant context")
	}

	if err := sm.lockout.Reset(ctx, key); err != nil {
		log.Warn().Err(err).Msg("lockout reset failed")
	}
	if err := sm.repos.Credentials.RecordLogin(ctx, ident.ID, now); err != nil {
		log.Warn().Err(err).Str("identity_id", ident.ID).Msg("recording last login failed")
	}

	sm.audit.Record(ctx, audit.SecurityEvent{
		Type:       audit.EventLoginSuccess,
		IdentityID: ident.ID,
		TenantID:   tenantID,
		IP:         req.ClientIP,
		UserAgent:  req.UserAgent,
		Severity:   audit.SeverityLow,
	})

	return &LoginResult{
		Token:              token,
		Session:            session,
		Role:               ident.Role,
		TenantID:           tenantID,
		MustChangePassword: ident.MustChangePassword,
		Context:            tc,
	}, nil
}

// failedAttempt counts one failure, records it and, when it reaches the
// threshold, records the lockout.
func (sm *SessionManager) failedAttempt(ctx context.Context, key string, base audit.SecurityEvent, eventType audit.EventType, detail string, result error) error {
	status, err := sm.lockout.RecordFailure(ctx, key)
	if err != nil {
		log.Err(err).Msg("recording failed attempt")
	}

	ev := base
	ev.Type = eventType
	ev.Severity = audit.SeverityMedium
	ev.Detail = detail
	sm.audit.Record(ctx, ev)

	if err == nil && !status.Allowed {
		locked := base
		locked.Type = audit.EventAccountLocked
		locked.Severity = audit.SeverityHigh
		locked.Detail = fmt.Sprintf("locked after %d failed attempts", status.Count)
		sm.recordSync(ctx, locked)
	}
	return result
}

// Verify checks token and returns its session and tenant context. Any
// session whose tenant binding no longer holds is torn down.
func (sm *SessionManager) Verify(ctx context.Context, token string, meta RequestMeta) (*sessions.Session, *tenantctx.Context, error) {
	if token == "" || len(token) > 2*sessionTokenBytes {
		return nil, nil, ErrSessionInvalid
	}
	sessionID := SessionID(token)

	session, err := sm.repos.Sessions.Get(sessionID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, nil, errors.Wrap(ErrAuthUnavailable, "[SessionManager.Verify] "+err.Error())
	}

	now := sm.nowTime()
	if session.Revoked {
		sm.teardown(sessionID)
		return nil, nil, ErrSessionRevoked
	}
	if session.Expired(now) {
		sm.teardown(sessionID)
		sm.audit.Record(ctx, audit.SecurityEvent{
			Type:       audit.EventSessionExpired,
			IdentityID: session.IdentityID,
			TenantID:   session.TenantID,
			IP:         meta.ClientIP,
			UserAgent:  meta.UserAgent,
			Severity:   audit.SeverityLow,
		})
		return nil, nil, ErrSessionExpired
	}

	tc, ok := sm.contexts.Current(sessionID)
	if !ok || !sm.contexts.Verify(sessionID, session.TenantID) {
		sm.suspicious(ctx, session, meta, audit.SeverityHigh, "tenant context does not match session")
		return nil, nil, ErrTenantMismatch
	}
	if tc.IsolationLevel == tenants.IsolationStrict && session.DeviceFingerprint != "" &&
		meta.DeviceFingerprint != session.DeviceFingerprint {
		sm.suspicious(ctx, session, meta, audit.SeverityHigh, "device fingerprint changed under strict isolation")
		return nil, nil, ErrTenantMismatch
	}

	if err := sm.repos.Sessions.Touch(sessionID, now.UTC()); err != nil {
		log.Warn().Err(err).Msg("session touch failed")
	}
	session.LastActivityAt = now.UTC()
	return session, tc, nil
}

func (sm *SessionManager) suspicious(ctx context.Context, session *sessions.Session, meta RequestMeta, severity audit.Severity, detail string) {
	sm.teardown(session.ID)
	sm.recordSync(ctx, audit.SecurityEvent{
		Type:       audit.EventSuspiciousActivity,
		IdentityID: session.IdentityID,
		TenantID:   session.TenantID,
		IP:         meta.ClientIP,
		UserAgent:  meta.UserAgent,
		Detail:     detail,
		Severity:   severity,
	})
}

func (sm *SessionManager) teardown(sessionID string) {
	sm.contexts.Clear(sessionID)
	if err := sm.repos.Sessions.Delete(sessionID); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		log.Warn().Err(err).Msg("session delete failed")
	}
}

// recordSync writes an incident event durably. The caller's outcome never
// depends on the sink; a failure is logged and the event stays queued.
func (sm *SessionManager) recordSync(ctx context.Context, ev audit.SecurityEvent) {
	syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sm.auditSyncTimeout)
	defer cancel()
	if err := sm.audit.RecordSync(syncCtx, ev); err != nil {
		log.Err(err).Str("event_type", string(ev.Type)).Msg("durable audit write failed")
	}
}

// Logout ends the session behind token.
func (sm *SessionManager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return ErrSessionInvalid
	}
	sessionID := SessionID(token)
	session, err := sm.repos.Sessions.Get(sessionID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return ErrSessionInvalid
	}
	if err != nil {
		return errors.Wrap(ErrAuthUnavailable, "[SessionManager.Logout] "+err.Error())
	}

	sm.teardown(sessionID)
	sm.audit.Record(ctx, audit.SecurityEvent{
		Type:       audit.EventLogout,
		IdentityID: session.IdentityID,
		TenantID:   session.TenantID,
		Severity:   audit.SeverityLow,
	})
	return nil
}

// ChangePassword replaces the password of the session's identity and revokes
// the identity's other sessions.
func (sm *SessionManager) ChangePassword(ctx context.Context, token string, meta RequestMeta, oldPassword, newPassword string) error {
	session, _, err := sm.Verify(ctx, token, meta)
	if err != nil {
		return err
	}
	if err := sm.validator.ValidatePasswordChange(oldPassword, newPassword); err != nil {
		return errors.Wrap(ErrWeakPassword, err.Error())
	}
	if err := identity.ValidatePasswordStrength(newPassword, sm.minPasswordLength); err != nil {
		return errors.Wrap(ErrWeakPassword, err.Error())
	}

	key := LockoutKey(session.Email)
	base := audit.SecurityEvent{
		IdentityID: session.IdentityID,
		TenantID:   session.TenantID,
		IP:         meta.ClientIP,
		UserAgent:  meta.UserAgent,
	}

	status, err := sm.lockout.Check(ctx, key)
	if err != nil {
		return errors.Wrap(ErrAuthUnavailable, "[SessionManager.ChangePassword] lockout check")
	}
	if !status.Allowed {
		return &LockedError{RetryAfter: status.RetryAfter}
	}

	credCtx, cancel := context.WithTimeout(ctx, sm.credentialTimeout)
	err = sm.repos.Credentials.CheckPassword(credCtx, session.IdentityID, oldPassword)
	cancel()
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return sm.failedAttempt(ctx, key, base, audit.EventPasswordChangeFailed, "current password incorrect", ErrInvalidCredentials)
	}
	if err != nil {
		return errors.Wrap(ErrAuthUnavailable, "[SessionManager.ChangePassword] check password")
	}

	hash, err := identity.HashPassword(newPassword)
	if err != nil {
		return errors.Wrap(err, "[SessionManager.ChangePassword] hashing")
	}
	if err := sm.repos.Credentials.UpdatePassword(ctx, session.IdentityID, hash); err != nil {
		return errors.Wrap(ErrAuthUnavailable, "[SessionManager.ChangePassword] update: "+err.Error())
	}
	if err := sm.lockout.Reset(ctx, key); err != nil {
		log.Warn().Err(err).Msg("lockout reset failed")
	}

	revoked, err := sm.repos.Sessions.RevokeByIdentity(session.IdentityID, "password changed", session.ID)
	if err != nil {
		log.Err(err).Str("identity_id", session.IdentityID).Msg("revoking other sessions failed")
	}
	for _, id := range revoked {
		sm.contexts.Clear(id)
	}

	ev := base
	ev.Type = audit.EventPasswordChanged
	ev.Severity = audit.SeverityMedium
	ev.Detail = fmt.Sprintf("%d other sessions revoked", len(revoked))
	sm.audit.Record(ctx, ev)
	return nil
}

// ForceLogoutUser revokes every session of identityID. Admins may only act
// inside their own tenant.
func (sm *SessionManager) ForceLogoutUser(ctx context.Context, requester audit.Requester, identityID string) (int, error) {
	target, err := sm.repos.Credentials.GetByID(ctx, identityID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return 0, errors.Wrapf(apperrors.ErrNotFound, "[SessionManager.ForceLogoutUser] identity %s", identityID)
	}
	if err != nil {
		return 0, errors.Wrap(ErrAuthUnavailable, "[SessionManager.ForceLogoutUser] "+err.Error())
	}

	allowed := requester.Role == identity.RoleSuperAdmin ||
		(requester.Role == identity.RoleAdmin && requester.TenantID != "" && requester.TenantID == target.TenantID)
	if !allowed {
		sm.audit.Record(ctx, audit.SecurityEvent{
			Type:       audit.EventSuspiciousActivity,
			IdentityID: requester.IdentityID,
			TenantID:   requester.TenantID,
			Detail:     fmt.Sprintf("force logout of %s denied", identityID),
			Severity:   audit.SeverityMedium,
		})
		return 0, ErrForbidden
	}

	revoked, err := sm.repos.Sessions.RevokeByIdentity(identityID, "forced logout by "+requester.IdentityID, "")
	if err != nil {
		return 0, errors.Wrap(err, "[SessionManager.ForceLogoutUser] revoke")
	}
	for _, id := range revoked {
		sm.contexts.Clear(id)
	}

	sm.audit.Record(ctx, audit.SecurityEvent{
		Type:       audit.EventSessionRevoked,
		IdentityID: identityID,
		TenantID:   target.TenantID,
		Detail:     fmt.Sprintf("%d sessions revoked by %s", len(revoked), requester.IdentityID),
		Severity:   audit.SeverityMedium,
	})
	return len(revoked), nil
}

// RevokeTenantSessions revokes every session bound to tenantID.
func (sm *SessionManager) RevokeTenantSessions(ctx context.Context, tenantID, reason string) (int, error) {
	revoked, err := sm.repos.Sessions.RevokeByTenant(tenantID, reason)
	if err != nil {
		return 0, errors.Wrap(err, "[SessionManager.RevokeTenantSessions]")
	}
	sm.contexts.ClearTenant(tenantID)

	if len(revoked) > 0 {
		sm.audit.Record(ctx, audit.SecurityEvent{
			Type:     audit.EventSessionRevoked,
			TenantID: tenantID,
			Detail:   fmt.Sprintf("%d sessions revoked: %s", len(revoked), reason),
			Severity: audit.SeverityMedium,
		})
	}
	return len(revoked), nil
}

// EnableMFA enrolls the session's identity in TOTP.
func (sm *SessionManager) EnableMFA(ctx context.Context, token string, meta RequestMeta) (*mfa.Enrollment, error) {
	session, _, err := sm.Verify(ctx, token, meta)
	if err != nil {
		return nil, err
	}
	ident, err := sm.repos.Credentials.GetByID(ctx, session.IdentityID)
	if err != nil {
		return nil, errors.Wrap(ErrAuthUnavailable, "[SessionManager.EnableMFA] "+err.Error())
	}
	enrollment, err := sm.mfa.Enable(ctx, ident)
	if err != nil {
		return nil, errors.Wrap(ErrAuthUnavailable, "[SessionManager.EnableMFA] "+err.Error())
	}
	return enrollment, nil
}

// CleanupExpiredSessions removes sessions whose lifetime has ended.
func (sm *SessionManager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	expired, err := sm.repos.Sessions.DeleteExpired(sm.nowTime())
	if err != nil {
		return 0, errors.Wrap(err, "[SessionManager.CleanupExpiredSessions]")
	}
	for _, s := range expired {
		sm.contexts.Clear(s.ID)
		sm.audit.Record(ctx, audit.SecurityEvent{
			Type:       audit.EventSessionExpired,
			IdentityID: s.IdentityID,
			TenantID:   s.TenantID,
			Severity:   audit.SeverityLow,
		})
	}
	return len(expired), nil
}
