package server

import (
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/school-auth/auth"
	"github.com/jrsteele09/school-auth/compliance"
	apperrors "github.com/jrsteele09/school-auth/internal/errors"
)

const (
	// HeaderDeviceFingerprint carries the client's device fingerprint, used by strict tenants
	HeaderDeviceFingerprint = "X-Device-Fingerprint"

	maxRequestBody = 1 << 16

	codeInvalidRequest      = "INVALID_REQUEST"
	codeInvalidConfirmation = "INVALID_CONFIRMATION"
	codeNotFound            = "NOT_FOUND"
	codeRateLimited         = "RATE_LIMITED"
	codeInternal            = "INTERNAL_ERROR"

	internalMessage = "Something went wrong, please try again."
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("writing json response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeInvalidRequest, Message: "The request body is not valid."})
		return false
	}
	return true
}

// writeError maps a service error to a status code and a public message.
// Internal error text never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, compliance.ErrForbidden):
		err = auth.ErrForbidden
	case errors.Is(err, compliance.ErrInvalidConfirmation):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: codeInvalidConfirmation, Message: "The confirmation code is invalid or has expired."})
		return
	case errors.Is(err, compliance.ErrUnknownDataType):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeInvalidRequest, Message: "Unknown data type requested."})
		return
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrTenantNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: codeNotFound, Message: "Not found."})
		return
	}

	code := auth.ErrorCode(err)
	status := http.StatusServiceUnavailable
	switch code {
	case auth.CodeInvalidCredentials, auth.CodeMFARequired, auth.CodeSessionExpired, auth.CodeSessionInvalid:
		status = http.StatusUnauthorized
	case auth.CodeAccountLocked:
		status = http.StatusLocked
		var locked *auth.LockedError
		if errors.As(err, &locked) {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(locked.RetryAfter.Seconds()))))
		}
	case auth.CodeTenantRequired, auth.CodeWeakPassword:
		status = http.StatusBadRequest
	case auth.CodeForbidden:
		status = http.StatusForbidden
	default:
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: code, Message: auth.PublicMessage(err)})
}

// clientIP is the peer address of the connection. Forwarding headers are
// not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestMeta(r *http.Request) auth.RequestMeta {
	return auth.RequestMeta{
		ClientIP:          clientIP(r),
		UserAgent:         r.UserAgent(),
		DeviceFingerprint: r.Header.Get(HeaderDeviceFingerprint),
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
