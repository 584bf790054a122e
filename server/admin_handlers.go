package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/school-auth/audit"
	"github.com/jrsteele09/school-auth/auth"
)

type exportRequest struct {
	TenantID  string   `json:"tenantId"`
	DataTypes []string `json:"dataTypes,omitempty"`
}

type erasureConfirmationRequest struct {
	TenantID string `json:"tenantId"`
}

type erasureConfirmationResponse struct {
	ConfirmationCode string `json:"confirmationCode"`
	ExpiresIn        int    `json:"expiresIn"` // seconds
}

type erasureRequest struct {
	TenantID         string `json:"tenantId"`
	ConfirmationCode string `json:"confirmationCode"`
}

// AuditEventsHandler lists security events. tenantId may be omitted by
// super-admins to read every tenant; types is a comma separated filter.
func (s *Server) AuditEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester, ok := requesterFromContext(w, r)
		if !ok {
			return
		}

		var types []audit.EventType
		if raw := r.URL.Query().Get("types"); raw != "" {
			for _, t := range strings.Split(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					types = append(types, audit.EventType(t))
				}
			}
		}

		events, err := s.audit.Query(r.Context(), r.URL.Query().Get("tenantId"), requester, types...)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

func (s *Server) ForceLogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester, ok := requesterFromContext(w, r)
		if !ok {
			return
		}
		n, err := s.sessions.ForceLogoutUser(r.Context(), requester, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
	}
}

func (s *Server) ExportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester, ok := requesterFromContext(w, r)
		if !ok {
			return
		}
		var req exportRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		data, err := s.compliance.Export(r.Context(), requester, req.TenantID, req.DataTypes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="tenant-export.json"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func (s *Server) ErasureConfirmationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester, ok := requesterFromContext(w, r)
		if !ok {
			return
		}
		var req erasureConfirmationRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		code, err := s.compliance.IssueErasureConfirmation(r.Context(), requester, req.TenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, erasureConfirmationResponse{
			ConfirmationCode: code,
			ExpiresIn:        int(s.compliance.ConfirmationTTL().Seconds()),
		})
	}
}

// ErasureHandler permanently deletes a tenant's data. The caller's own
// session is revoked too when it belongs to that tenant.
func (s *Server) ErasureHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester, ok := requesterFromContext(w, r)
		if !ok {
			return
		}
		var req erasureRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		report, err := s.compliance.DeleteAllTenantData(r.Context(), requester, req.TenantID, req.ConfirmationCode)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func requesterFromContext(w http.ResponseWriter, r *http.Request) (audit.Requester, bool) {
	session := sessionFromContext(r.Context())
	if session == nil {
		writeError(w, r, auth.ErrSessionInvalid)
		return audit.Requester{}, false
	}
	return session.Requester(), true
}
