package identity

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType is the single role an identity holds within its tenant
type RoleType string

const (
	RoleSuperAdmin RoleType = "super_admin" // Platform operator, not bound to one school
	RoleAdmin      RoleType = "admin"       // School administrator
	RoleTeacher    RoleType = "teacher"
	RoleStudent    RoleType = "student"
)

// DefaultMinPasswordLength is used when no policy length is configured
const DefaultMinPasswordLength = 8

// Identity is a principal capable of authenticating. It is owned by the credential
// store; the session layer only writes MustChangePassword and LastLogin.
type Identity struct {
	ID                 string        `json:"id,omitempty"`
	Email              string        `json:"email,omitempty"`
	PasswordHash       string        `json:"-"` // never serialize
	Role               RoleType      `json:"role,omitempty"`
	TenantID           string        `json:"tenant_id,omitempty"`
	Permissions        []string      `json:"permissions,omitempty"`
	MFAEnabled         bool          `json:"mfa_enabled,omitempty"`
	SessionLifetime    time.Duration `json:"session_lifetime,omitempty"` // zero means the configured default
	MustChangePassword bool          `json:"must_change_password,omitempty"`
	LastLogin          time.Time     `json:"last_login,omitempty"`
	Blocked            bool          `json:"blocked,omitempty"`
}

// IsSuperAdmin returns true if the identity has platform-wide privileges
func (i *Identity) IsSuperAdmin() bool {
	return i != nil && i.Role == RoleSuperAdmin
}

// IsAdminOfTenant reports whether the identity may administer the tenant
func (i *Identity) IsAdminOfTenant(tenantID string) bool {
	if i == nil {
		return false
	}
	if i.IsSuperAdmin() {
		return true
	}
	return i.Role == RoleAdmin && i.TenantID == tenantID
}

// HasPermission checks an explicit permission grant
func (i *Identity) HasPermission(permission string) bool {
	if i == nil {
		return false
	}
	for _, p := range i.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CanAccessTenant reports whether the identity may hold a session bound to tenantID
func (i *Identity) CanAccessTenant(tenantID string) bool {
	if i == nil || tenantID == "" {
		return false
	}
	return i.IsSuperAdmin() || i.TenantID == tenantID
}

// ParseRole validates a role name
func ParseRole(role string) (RoleType, error) {
	switch r := RoleType(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleSuperAdmin, RoleAdmin, RoleTeacher, RoleStudent:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least minLength characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
// - Contains at least one special character
func ValidatePasswordStrength(password string, minLength int) error {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	if len([]rune(password)) < minLength {
		return fmt.Errorf("password must be at least %d characters long", minLength)
	}

	var (
		hasUpper   bool
		hasLower   bool
		hasNumber  bool
		hasSpecial bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	if !hasSpecial {
		return fmt.Errorf("password must contain at least one special character")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
