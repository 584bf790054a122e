// Package compliance implements tenant data export and tenant erasure.
package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/school-auth/audit"
	"github.com/jrsteele09/school-auth/identity"
	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/jrsteele09/school-auth/tenants"
	"github.com/jrsteele09/school-auth/token"
)

const (
	DataTypeAudit           = "audit"
	ErasurePurpose          = "tenant_erasure"
	DefaultConfirmationTTL  = 5 * time.Minute
	DefaultAuditSyncTimeout = 2 * time.Second
)

var (
	ErrForbidden           = errors.New("not authorized for tenant compliance operation")
	ErrInvalidConfirmation = errors.New("invalid erasure confirmation")
	ErrUnknownDataType     = errors.New("unknown data type")
)

// DataSource is a store holding tenant-owned records.
type DataSource interface {
	Name() string
	ExportTenant(ctx context.Context, tenantID string) (any, error)
	DeleteTenant(ctx context.Context, tenantID string) (int, error)
}

// AuditLog is the subset of audit.Log used here
type AuditLog interface {
	Record(ctx context.Context, ev audit.SecurityEvent)
	RecordSync(ctx context.Context, ev audit.SecurityEvent) error
	Query(ctx context.Context, tenantID string, requester audit.Requester, types ...audit.EventType) ([]audit.SecurityEvent, error)
}

// SessionRevoker revokes live sessions before tenant data disappears.
type SessionRevoker interface {
	RevokeTenantSessions(ctx context.Context, tenantID, reason string) (int, error)
}

// Export is the document returned by Service.Export.
type Export struct {
	TenantID   string                `json:"tenantId"`
	TenantName string                `json:"tenantName"`
	ExportedAt time.Time             `json:"exportedAt"`
	DataTypes  []string              `json:"dataTypes"`
	Events     []audit.SecurityEvent `json:"events"`
	Data       map[string]any        `json:"data"`
}

// ErasureReport summarises what DeleteAllTenantData removed.
type ErasureReport struct {
	TenantID        string         `json:"tenantId"`
	SessionsRevoked int            `json:"sessionsRevoked"`
	Deleted         map[string]int `json:"deleted"`
}

type Service struct {
	tenants         tenants.Repo
	audit           AuditLog
	revoker         SessionRevoker
	signer          *token.HMACSigner
	used            token.UsedTokenCache
	sources         []DataSource
	confirmationTTL time.Duration
	syncTimeout     time.Duration
	nowTime         func() time.Time
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithDataSources registers the stores included in exports and erasure
func WithDataSources(sources ...DataSource) ServiceOption {
	return func(s *Service) {
		s.sources = append(s.sources, sources...)
	}
}

func WithConfirmationTTL(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.confirmationTTL = d
		}
	}
}

// WithAuditSyncTimeout bounds how long a request waits for a durable audit write.
func WithAuditSyncTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.syncTimeout = d
		}
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService creates the compliance service. signingKey must not be shared
// with any other token issuer.
func NewService(tenantRepo tenants.Repo, auditLog AuditLog, revoker SessionRevoker, signingKey []byte, options ...ServiceOption) (*Service, error) {
	if tenantRepo == nil {
		return nil, errors.New("[NewService] tenant repo is required")
	}
	if auditLog == nil {
		return nil, errors.New("[NewService] audit log is required")
	}
	if revoker == nil {
		return nil, errors.New("[NewService] session revoker is required")
	}

	s := &Service{
		tenants:         tenantRepo,
		audit:           auditLog,
		revoker:         revoker,
		used:            token.NewInMemoryUsedTokenCache(),
		confirmationTTL: DefaultConfirmationTTL,
		syncTimeout:     DefaultAuditSyncTimeout,
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	signer, err := token.NewHMACSigner(signingKey, token.WithNowTime(func() time.Time { return s.nowTime() }))
	if err != nil {
		return nil, errors.Wrap(err, "[NewService]")
	}
	s.signer = signer
	return s, nil
}

func authorized(requester audit.Requester, tenantID string) bool {
	switch requester.Role {
	case identity.RoleSuperAdmin:
		return true
	case identity.RoleAdmin:
		return requester.TenantID != "" && requester.TenantID == tenantID
	}
	return false
}

// ConfirmationTTL is how long an erasure confirmation stays valid
func (s *Service) ConfirmationTTL() time.Duration {
	return s.confirmationTTL
}

// DataTypes lists every exportable data type
func (s *Service) DataTypes() []string {
	names := []string{DataTypeAudit}
	for _, src := range s.sources {
		names = append(names, src.Name())
	}
	sort.Strings(names)
	return names
}

func (s *Service) source(name string) DataSource {
	for _, src := range s.sources {
		if src.Name() == name {
			return src
		}
	}
	return nil
}

// Export produces a JSON document of the tenant's data. An empty dataTypes
// exports everything.
func (s *Service) Export(ctx context.Context, requester audit.Requester, tenantID string, dataTypes []string) ([]byte, error) {
	if !authorized(requester, tenantID) {
		s.deny(ctx, audit.EventDataExportDenied, requester, tenantID, "export denied")
		return nil, ErrForbidden
	}

	tenant, err := s.tenants.Get(tenantID)
	if err != nil {
		return nil, errors.Wrapf(err, "[Service.Export] tenant %s", tenantID)
	}

	if len(dataTypes) == 0 {
		dataTypes = s.DataTypes()
	}
	doc := Export{
		TenantID:   tenant.ID,
		TenantName: tenant.Name,
		ExportedAt: s.nowTime().UTC(),
		DataTypes:  dataTypes,
		Events:     []audit.SecurityEvent{},
		Data:       make(map[string]any),
	}

	for _, dt := range dataTypes {
		if dt == DataTypeAudit {
			events, err := s.audit.Query(ctx, tenantID, requester)
			if err != nil {
				return nil, errors.Wrap(err, "[Service.Export] audit")
			}
			doc.Events = events
			continue
		}
		src := s.source(dt)
		if src == nil {
			return nil, errors.Wrapf(ErrUnknownDataType, "[Service.Export] %q", dt)
		}
		data, err := src.ExportTenant(ctx, tenantID)
		if err != nil {
			return nil, errors.Wrapf(err, "[Service.Export] %s", dt)
		}
		doc.Data[dt] = data
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Export] marshal")
	}

	s.audit.Record(ctx, audit.SecurityEvent{
		Type:       audit.EventDataExport,
		IdentityID: requester.IdentityID,
		TenantID:   tenantID,
		Detail:     fmt.Sprintf("data types: %v", dataTypes),
		Severity:   audit.SeverityMedium,
	})
	return out, nil
}

// IssueErasureConfirmation returns a single-use token that authorises the
// requester to erase tenantID within the confirmation window.
func (s *Service) IssueErasureConfirmation(ctx context.Context, requester audit.Requester, tenantID string) (string, error) {
	if !authorized(requester, tenantID) {
		s.deny(ctx, audit.EventTenantDataErasureDenied, requester, tenantID, "confirmation denied")
		return "", ErrForbidden
	}
	if _, err := s.tenants.Get(tenantID); err != nil {
		return "", errors.Wrapf(err, "[Service.IssueErasureConfirmation] tenant %s", tenantID)
	}

	raw, claims, err := s.signer.Issue(requester.IdentityID, tenantID, ErasurePurpose, s.confirmationTTL)
	if err != nil {
		return "", errors.Wrap(err, "[Service.IssueErasureConfirmation]")
	}

	s.audit.Record(ctx, audit.SecurityEvent{
		Type:       audit.EventErasureConfirmationIssued,
		IdentityID: requester.IdentityID,
		TenantID:   tenantID,
		Detail:     "jti " + claims.ID,
		Severity:   audit.SeverityHigh,
	})
	return raw, nil
}

// DeleteAllTenantData erases every record of the tenant. Live sessions are
// revoked first so in-flight users fail their next request.
func (s *Service) DeleteAllTenantData(ctx context.Context, requester audit.Requester, tenantID, confirmationCode string) (*ErasureReport, error) {
	if !authorized(requester, tenantID) {
		s.deny(ctx, audit.EventTenantDataErasureDenied, requester, tenantID, "erasure denied")
		return nil, ErrForbidden
	}

	claims, err := s.signer.Parse(confirmationCode)
	if err != nil {
		s.deny(ctx, audit.EventTenantDataErasureDenied, requester, tenantID, "invalid confirmation")
		return nil, ErrInvalidConfirmation
	}
	if claims.Purpose != ErasurePurpose || claims.Tenant != tenantID || claims.Subject != requester.IdentityID {
		s.deny(ctx, audit.EventTenantDataErasureDenied, requester, tenantID, "confirmation bound to another request")
		return nil, ErrInvalidConfirmation
	}
	if !s.used.MarkUsed(claims.ID, claims.ExpiresAt.Time) {
		s.deny(ctx, audit.EventTenantDataErasureDenied, requester, tenantID, "confirmation already used")
		return nil, ErrInvalidConfirmation
	}
	s.used.Cleanup(s.nowTime())

	report := &ErasureReport{TenantID: tenantID, Deleted: make(map[string]int)}
	report.SessionsRevoked, err = s.revoker.RevokeTenantSessions(ctx, tenantID, "tenant data erasure")
	if err != nil {
		return nil, errors.Wrap(err, "[Service.DeleteAllTenantData] revoke sessions")
	}

	for _, src := range s.sources {
		n, err := src.DeleteTenant(ctx, tenantID)
		if err != nil {
			return report, errors.Wrapf(err, "[Service.DeleteAllTenantData] %s", src.Name())
		}
		report.Deleted[src.Name()] = n
	}
	if err := s.tenants.Delete(tenantID); err != nil && !apperrors.Is(err, apperrors.ErrTenantNotFound) {
		return report, errors.Wrap(err, "[Service.DeleteAllTenantData] tenant record")
	}

	ev := audit.SecurityEvent{
		Type:       audit.EventTenantDataErasure,
		IdentityID: requester.IdentityID,
		TenantID:   tenantID,
		Detail:     fmt.Sprintf("sessions revoked %d, deleted %v", report.SessionsRevoked, report.Deleted),
		Severity:   audit.SeverityCritical,
	}
	if err := s.recordSync(ctx, ev); err != nil {
		// The event stays queued; erasure itself has already completed.
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("tenant erasure event not yet persisted")
	}
	log.Warn().Str("tenant_id", tenantID).Str("identity_id", requester.IdentityID).Msg("tenant data erased")
	return report, nil
}

func (s *Service) deny(ctx context.Context, eventType audit.EventType, requester audit.Requester, tenantID, detail string) {
	err := s.recordSync(ctx, audit.SecurityEvent{
		Type:       eventType,
		IdentityID: requester.IdentityID,
		TenantID:   tenantID,
		Detail:     detail,
		Severity:   audit.SeverityHigh,
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("denial event not yet persisted")
	}
}

// recordSync waits for a durable write for at most syncTimeout. A cancelled
// request still gets the full wait, and the event stays queued either way.
func (s *Service) recordSync(ctx context.Context, ev audit.SecurityEvent) error {
	syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.syncTimeout)
	defer cancel()
	return s.audit.RecordSync(syncCtx, ev)
}
