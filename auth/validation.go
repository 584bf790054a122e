package auth

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	maxEmailLength    = 254
	maxPasswordLength = 1024
	maxTokenLength    = 64
)

// Validator checks request shape before any store is consulted. Shape errors
// never count against the lockout budget.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLoginRequest validates login input
func (v *Validator) ValidateLoginRequest(req LoginRequest) error {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("email too long")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email format")
	}

	if req.Password == "" {
		return fmt.Errorf("password is required")
	}
	if len(req.Password) > maxPasswordLength {
		return fmt.Errorf("password too long")
	}

	if len(req.MFAToken) > maxTokenLength {
		return fmt.Errorf("mfa token too long")
	}
	if strings.ContainsAny(req.TenantCode, " \t\r\n|") {
		return fmt.Errorf("invalid tenant code")
	}
	return nil
}

// ValidatePasswordChange checks a change request has both passwords and that they differ
func (v *Validator) ValidatePasswordChange(oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("current and new password are required")
	}
	if len(newPassword) > maxPasswordLength {
		return fmt.Errorf("password too long")
	}
	if oldPassword == newPassword {
		return fmt.Errorf("new password must differ from the current one")
	}
	return nil
}
