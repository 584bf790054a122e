package auth_test

import (
	"strings"
	"testing"

	"github.com/jrsteele09/school-auth/auth"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidateLoginRequest(t *testing.T) {
	v := auth.NewValidator()

	tests := []struct {
		name    string
		req     auth.LoginRequest
		wantErr string
	}{
		{"valid", auth.LoginRequest{Email: "a@school.test", Password: "pw"}, ""},
		{"valid with tenant", auth.LoginRequest{Email: " a@school.test ", Password: "pw", TenantCode: "springfield"}, ""},
		{"missing email", auth.LoginRequest{Password: "pw"}, "email is required"},
		{"bad email", auth.LoginRequest{Email: "not-an-email", Password: "pw"}, "invalid email format"},
		{"long email", auth.LoginRequest{Email: strings.Repeat("a", 250) + "@x.io", Password: "pw"}, "email too long"},
		{"missing password", auth.LoginRequest{Email: "a@school.test"}, "password is required"},
		{"long password", auth.LoginRequest{Email: "a@school.test", Password: strings.Repeat("p", 2000)}, "password too long"},
		{"long token", auth.LoginRequest{Email: "a@school.test", Password: "pw", MFAToken: strings.Repeat("1", 100)}, "mfa token too long"},
		{"separator in tenant", auth.LoginRequest{Email: "a@school.test", Password: "pw", TenantCode: "a|b"}, "invalid tenant code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateLoginRequest(tt.req)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidator_ValidatePasswordChange(t *testing.T) {
	v := auth.NewValidator()

	require.NoError(t, v.ValidatePasswordChange("Old-pass1", "New-pass1"))
	require.Error(t, v.ValidatePasswordChange("", "New-pass1"))
	require.Error(t, v.ValidatePasswordChange("Old-pass1", ""))
	require.Error(t, v.ValidatePasswordChange("Same-pass1", "Same-pass1"))
}
