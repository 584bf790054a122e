// Package tenantctx holds the tenant context bound to each authenticated
// session, with the keys derived for that tenant.
package tenantctx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jrsteele09/school-auth/audit"
	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/jrsteele09/school-auth/tenants"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/hkdf"
)

const (
	HeaderTenantID       = "X-Tenant-Id"
	HeaderTenantDataKey  = "X-Tenant-Data-Key"
	HeaderIsolationLevel = "X-Isolation-Level"

	MinMasterKeyLength = 32
	keyLength          = 32

	infoDataKey       = "data-key"
	infoEncryptionKey = "encryption-key"
)

// Context is the tenant a session is currently operating in.
type Context struct {
	TenantID       string                 `json:"tenant_id"`
	TenantName     string                 `json:"tenant_name"`
	DataKey        string                 `json:"-"`
	EncryptionKey  []byte                 `json:"-"`
	IsolationLevel tenants.IsolationLevel `json:"isolation_level"`
	SessionID      string                 `json:"-"`
	CreatedAt      time.Time              `json:"created_at"`
}

func (c *Context) clone() *Context {
	cp := *c
	cp.EncryptionKey = append([]byte(nil), c.EncryptionKey...)
	return &cp
}

// Manager keeps one current Context per session. There is no process-wide
// current tenant.
type Manager struct {
	tenants   tenants.Repo
	masterKey []byte
	recorder  audit.Recorder
	nowTime   func() time.Time
	contexts  map[string]*Context // session id to context
	lock      sync.RWMutex
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithRecorder sets where tenant_context_replaced events go.
func WithRecorder(r audit.Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

func NewManager(tenantRepo tenants.Repo, masterKey []byte, options ...ManagerOption) (*Manager, error) {
	if tenantRepo == nil {
		return nil, errors.New("[tenantctx.NewManager] tenant repo is required")
	}
	if len(masterKey) < MinMasterKeyLength {
		return nil, errors.Wrapf(apperrors.ErrMissingKey, "[tenantctx.NewManager] master key must be at least %d bytes", MinMasterKeyLength)
	}
	m := &Manager{
		tenants:   tenantRepo,
		masterKey: append([]byte(nil), masterKey...),
		nowTime:   time.Now,
		contexts:  make(map[string]*Context),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Init makes tenantID the current tenant of the session, replacing any
// previous context.
func (m *Manager) Init(ctx context.Context, sessionID, tenantID string) (*Context, error) {
	if sessionID == "" || tenantID == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[Manager.Init] session and tenant are required")
	}
	tenant, err := m.tenants.Get(tenantID)
	if err != nil {
		return nil, errors.Wrapf(err, "[Manager.Init] resolving tenant %s", tenantID)
	}

	dataKey, err := m.derive(tenantID, infoDataKey)
	if err != nil {
		return nil, err
	}
	encKey, err := m.derive(tenantID, infoEncryptionKey)
	if err != nil {
		return nil, err
	}

	tc := &Context{
		TenantID:       tenant.ID,
		TenantName:     tenant.Name,
		DataKey:        hex.EncodeToString(dataKey),
		EncryptionKey:  encKey,
		IsolationLevel: tenant.Isolation(),
		SessionID:      sessionID,
		CreatedAt:      m.nowTime().UTC(),
	}

	m.lock.Lock()
	previous, replaced := m.contexts[sessionID]
	m.contexts[sessionID] = tc
	m.lock.Unlock()

	if replaced && m.recorder != nil {
		m.recorder.Record(ctx, audit.SecurityEvent{
			Type:     audit.EventTenantContextReplaced,
			TenantID: tenant.ID,
			Detail:   fmt.Sprintf("previous tenant %s", previous.TenantID),
			Severity: audit.SeverityMedium,
		})
	}
	log.Debug().Str("tenant_id", tenant.ID).Bool("replaced", replaced).Msg("tenant context initialised")
	return tc.clone(), nil
}

func (m *Manager) derive(tenantID, info string) ([]byte, error) {
	key := make([]byte, keyLength)
	r := hkdf.New(sha256.New, m.masterKey, []byte(tenantID), []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrapf(err, "[Manager.derive] %s", info)
	}
	return key, nil
}

// Verify reports whether the session's current context belongs to tenantID.
func (m *Manager) Verify(sessionID, tenantID string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	tc, ok := m.contexts[sessionID]
	return ok && tenantID != "" && tc.TenantID == tenantID
}

// Current returns a copy of the session's context.
func (m *Manager) Current(sessionID string) (*Context, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	tc, ok := m.contexts[sessionID]
	if !ok {
		return nil, false
	}
	return tc.clone(), true
}

func (m *Manager) Clear(sessionID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.contexts, sessionID)
}

// ClearTenant drops every context of the tenant and returns how many were removed.
func (m *Manager) ClearTenant(tenantID string) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	n := 0
	for sid, tc := range m.contexts {
		if tc.TenantID == tenantID {
			delete(m.contexts, sid)
			n++
		}
	}
	return n
}

// Len is the number of sessions holding a context
func (m *Manager) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.contexts)
}

// DeriveKey namespaces baseKey for a tenant. The tenant id is length-prefixed
// so ids containing ':' cannot collide with another tenant's keys.
func DeriveKey(tenantID, baseKey string) string {
	return fmt.Sprintf("tenant:%d:%s:%s", len(tenantID), tenantID, baseKey)
}

// Headers are the isolation headers sent to backend services.
func Headers(c *Context) map[string]string {
	return map[string]string{
		HeaderTenantID:       c.TenantID,
		HeaderTenantDataKey:  c.DataKey,
		HeaderIsolationLevel: string(c.IsolationLevel),
	}
}

type contextKey struct{}

// WithContext attaches tc to ctx for downstream handlers and transports.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

func FromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(*Context)
	return tc, ok && tc != nil
}
