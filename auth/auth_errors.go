package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/school-auth/audit"
	"github.com/jrsteele09/school-auth/boundary"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrMFARequired        = errors.New("mfa required")
	ErrInvalidMFAToken    = errors.New("invalid mfa token")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionInvalid     = errors.New("session invalid")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrTenantMismatch     = errors.New("tenant mismatch")
	ErrTenantRequired     = errors.New("tenant code required")
	ErrWeakPassword       = errors.New("password does not meet policy")
	ErrForbidden          = errors.New("forbidden")
	ErrAuthUnavailable    = errors.New("authentication temporarily unavailable")
)

// Error codes returned to clients.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeMFARequired        = "MFA_REQUIRED"
	CodeInvalidMFAToken    = "INVALID_MFA_TOKEN"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeSessionInvalid     = "SESSION_INVALID"
	CodeTenantRequired     = "TENANT_REQUIRED"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeForbidden          = "FORBIDDEN"
	CodeUnavailable        = "SERVICE_UNAVAILABLE"
)

// LockedError is returned while an identity is locked out.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// ErrorCode classifies err for API responses. A wrong MFA token is reported
// as INVALID_CREDENTIALS so clients cannot tell which factor failed.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccountLocked):
		return CodeAccountLocked
	case errors.Is(err, ErrMFARequired):
		return CodeMFARequired
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidMFAToken):
		return CodeInvalidCredentials
	case errors.Is(err, ErrSessionExpired):
		return CodeSessionExpired
	case errors.Is(err, ErrSessionInvalid), errors.Is(err, ErrSessionRevoked),
		errors.Is(err, ErrTenantMismatch), errors.Is(err, boundary.ErrBoundaryViolation),
		errors.Is(err, boundary.ErrDecryptionFailed):
		return CodeSessionInvalid
	case errors.Is(err, ErrTenantRequired):
		return CodeTenantRequired
	case errors.Is(err, ErrWeakPassword):
		return CodeWeakPassword
	case errors.Is(err, ErrForbidden), errors.Is(err, audit.ErrForbidden):
		return CodeForbidden
	default:
		return CodeUnavailable
	}
}

// PublicMessage is the only text about err an end user sees.
func PublicMessage(err error) string {
	switch ErrorCode(err) {
	case "":
		return ""
	case CodeAccountLocked:
		return "Too many failed attempts. Please try again later."
	case CodeMFARequired:
		return "Enter the code from your authenticator app."
	case CodeInvalidCredentials:
		return "The details you entered are incorrect."
	case CodeSessionExpired:
		return "Your session has expired, please log in again."
	case CodeSessionInvalid:
		return "Session invalid, please log in again."
	case CodeTenantRequired:
		return "Please enter your school code."
	case CodeWeakPassword:
		return "Password must be at least 8 characters and include upper and lower case letters, a number and a symbol."
	case CodeForbidden:
		return "You do not have permission to do that."
	default:
		return "The service is temporarily unavailable, please try again."
	}
}
