package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteHealth = "/healthz"

	// Auth Routes
	RouteAuthLogin     = "/api/auth/login"
	RouteAuthLogout    = "/api/auth/logout"
	RouteAuthSession   = "/api/auth/session"
	RouteAuthPassword  = "/api/auth/password"
	RouteAuthMFAEnable = "/api/auth/mfa/enable"

	// Admin Routes
	RouteAuditEvents     = "/api/audit/events"
	RouteAdminUserLogout = "/api/admin/users/{id}/logout"

	// Compliance Routes
	RouteComplianceExport    = "/api/compliance/export"
	RouteErasureConfirmation = "/api/compliance/erasure/confirmation"
	RouteErasure             = "/api/compliance/erasure"

	// Tenant data routes
	RouteDataSeal = "/api/data/seal"
	RouteDataOpen = "/api/data/open"
)
