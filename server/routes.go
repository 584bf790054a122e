package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// LOGIN
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware(s.LoginRateLimitMiddleware)...))

	// Session routes
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteAuthPassword, ChainMiddleware(s.ChangePasswordHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteAuthMFAEnable, ChainMiddleware(s.EnableMFAHandler(), s.APIMiddleware(s.RequireSession())...))

	// Admin routes; the services authorize and audit per tenant
	s.RegisterRouteHandler("GET "+RouteAuditEvents, ChainMiddleware(s.AuditEventsHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteAdminUserLogout, ChainMiddleware(s.ForceLogoutHandler(), s.APIMiddleware(s.RequireSession())...))

	s.RegisterRouteHandler("POST "+RouteComplianceExport, ChainMiddleware(s.ExportHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteErasureConfirmation, ChainMiddleware(s.ErasureConfirmationHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteErasure, ChainMiddleware(s.ErasureHandler(), s.APIMiddleware(s.RequireSession())...))

	s.RegisterRouteHandler("POST "+RouteDataSeal, ChainMiddleware(s.SealDataHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteDataOpen, ChainMiddleware(s.OpenDataHandler(), s.APIMiddleware(s.RequireSession())...))
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + reset
	} else {
		displayMethod = gray + paddedMethod + reset
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
