package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/school-auth/auth"
	"github.com/jrsteele09/school-auth/sessions"
	"github.com/jrsteele09/school-auth/tenantctx"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the verified *sessions.Session
	ContextKeySession ContextKey = "session"
	// ContextKeyToken stores the bearer token the session was verified with
	ContextKeyToken ContextKey = "session_token"
)

// RequireSession verifies the bearer token and binds the request to the
// session's tenant. Client-supplied isolation headers are replaced with the
// values of the verified tenant context.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, r, auth.ErrSessionInvalid)
				return
			}

			session, tc, err := s.sessions.Verify(r.Context(), token, requestMeta(r))
			if err != nil {
				writeError(w, r, err)
				return
			}

			ctx := tenantctx.WithContext(r.Context(), tc)
			ctx = context.WithValue(ctx, ContextKeySession, session)
			ctx = context.WithValue(ctx, ContextKeyToken, token)
			r = r.WithContext(ctx)
			for h, v := range tenantctx.Headers(tc) {
				r.Header.Set(h, v)
			}

			next(w, r)
		}
	}
}

func sessionFromContext(ctx context.Context) *sessions.Session {
	session, _ := ctx.Value(ContextKeySession).(*sessions.Session)
	return session
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(ContextKeyToken).(string)
	return token
}
