// Package server exposes the session manager, audit log and compliance
// operations as a JSON API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/school-auth/audit"
	"github.com/jrsteele09/school-auth/auth"
	"github.com/jrsteele09/school-auth/compliance"
	"github.com/jrsteele09/school-auth/internal/config"
)

// AuditQuerier reads the security event history.
type AuditQuerier interface {
	Query(ctx context.Context, tenantID string, requester audit.Requester, types ...audit.EventType) ([]audit.SecurityEvent, error)
}

// Services are the components the HTTP surface delegates to
type Services struct {
	Sessions   *auth.SessionManager
	Audit      AuditQuerier
	Compliance *compliance.Service
}

type Server struct {
	env          string // Environment (e.g., "DEV", "PROD")
	mux          *http.ServeMux
	routes       []string
	config       config.Config
	sessions     *auth.SessionManager
	audit        AuditQuerier
	compliance   *compliance.Service
	loginLimiter *ipRateLimiter
}

func New(cfg config.Config, services Services) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if services.Sessions == nil || services.Audit == nil || services.Compliance == nil {
		return nil, errors.New("[Server New] sessions, audit and compliance services are required")
	}

	s := &Server{
		env:        cfg.GetEnv(),
		mux:        http.NewServeMux(),
		config:     cfg,
		sessions:   services.Sessions,
		audit:      services.Audit,
		compliance: services.Compliance,
	}
	if cfg.GetEnableRateLimiting() {
		s.loginLimiter = newIPRateLimiter(cfg.GetLoginRateLimit(), cfg.GetLoginRateBurst(), 10*time.Minute)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Preflight requests never reach the route handlers
	if r.Method == http.MethodOptions {
		s.CorsMiddleware(noContent)(w, r)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
