package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/school-auth/auth"
	"github.com/jrsteele09/school-auth/identity"
	"github.com/jrsteele09/school-auth/tenantctx"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	TenantCode string `json:"tenantCode,omitempty"`
	MFAToken   string `json:"mfaToken,omitempty"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type loginResponse struct {
	Token              string            `json:"token"`
	Role               identity.RoleType `json:"role"`
	TenantID           string            `json:"tenantId"`
	MustChangePassword bool              `json:"mustChangePassword"`
	ExpiresAt          time.Time         `json:"expiresAt"`
}

type sessionResponse struct {
	IdentityID     string            `json:"identityId"`
	Email          string            `json:"email"`
	Role           identity.RoleType `json:"role"`
	TenantID       string            `json:"tenantId"`
	TenantName     string            `json:"tenantName"`
	IsolationLevel string            `json:"isolationLevel"`
	MFAVerified    bool              `json:"mfaVerified"`
	LastActivityAt time.Time         `json:"lastActivityAt"`
	ExpiresAt      time.Time         `json:"expiresAt"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type enrollmentResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURL string   `json:"provisioningUrl"`
	RecoveryCodes   []string `json:"recoveryCodes"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// LoginHandler authenticates a user. MFA_REQUIRED and INVALID_CREDENTIALS
// are both 401 but carry distinct codes so clients can prompt for a code.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		meta := requestMeta(r)
		result, err := s.sessions.Login(r.Context(), auth.LoginRequest{
			Email:             req.Email,
			Password:          req.Password,
			TenantCode:        req.TenantCode,
			MFAToken:          req.MFAToken,
			RememberMe:        req.RememberMe,
			ClientIP:          meta.ClientIP,
			UserAgent:         meta.UserAgent,
			DeviceFingerprint: meta.DeviceFingerprint,
			IsSecure:          getScheme(r) == "https",
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, loginResponse{
			Token:              result.Token,
			Role:               result.Role,
			TenantID:           result.TenantID,
			MustChangePassword: result.MustChangePassword,
			ExpiresAt:          result.Session.ExpiresAt,
		})
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Logout(r.Context(), tokenFromContext(r.Context())); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SessionHandler describes the caller's session and tenant binding
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := sessionFromContext(r.Context())
		tc, _ := tenantctx.FromContext(r.Context())
		if session == nil || tc == nil {
			writeError(w, r, auth.ErrSessionInvalid)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{
			IdentityID:     session.IdentityID,
			Email:          session.Email,
			Role:           session.Role,
			TenantID:       session.TenantID,
			TenantName:     tc.TenantName,
			IsolationLevel: string(tc.IsolationLevel),
			MFAVerified:    session.MFAVerified,
			LastActivityAt: session.LastActivityAt,
			ExpiresAt:      session.ExpiresAt,
		})
	}
}

func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		err := s.sessions.ChangePassword(r.Context(), tokenFromContext(r.Context()), requestMeta(r), req.CurrentPassword, req.NewPassword)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// EnableMFAHandler returns the enrollment once; recovery codes cannot be fetched again.
func (s *Server) EnableMFAHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enrollment, err := s.sessions.EnableMFA(r.Context(), tokenFromContext(r.Context()), requestMeta(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, enrollmentResponse{
			Secret:          enrollment.Secret,
			ProvisioningURL: enrollment.ProvisioningURL,
			RecoveryCodes:   enrollment.RecoveryCodes,
		})
	}
}
