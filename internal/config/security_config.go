package config

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/rs/zerolog/log"
)

const keyLength = 32

type SecurityConfig interface {
	GetMaxFailedAttempts() int
	GetLockoutDuration() time.Duration
	GetDefaultSessionLifetime() time.Duration
	GetRememberMeLifetime() time.Duration
	GetCredentialTimeout() time.Duration
	GetMinPasswordLength() int
	GetMasterKey() []byte
	GetConfirmationSigningKey() []byte
	GetConfirmationTTL() time.Duration
	GetMFAIssuer() string
	GetEnableRateLimiting() bool
	GetLoginRateLimit() float64
	GetLoginRateBurst() int
}

type Security struct {
	file *FileConfig
	// Generated when no key is configured; they do not survive a restart.
	ephemeralMaster  []byte
	ephemeralConfirm []byte
}

var _ SecurityConfig = Security{}

func newSecurity(fc *FileConfig) Security {
	return Security{
		file:             fc,
		ephemeralMaster:  randomKey(),
		ephemeralConfirm: randomKey(),
	}
}

func (s Security) GetMaxFailedAttempts() int {
	return getInt("MAX_FAILED_ATTEMPTS", s.file.Security.MaxFailedAttempts, 5)
}

func (s Security) GetLockoutDuration() time.Duration {
	return getDuration("LOCKOUT_DURATION", s.file.Security.LockoutDuration, 15*time.Minute)
}

func (s Security) GetDefaultSessionLifetime() time.Duration {
	return getDuration("SESSION_LIFETIME", s.file.Security.SessionLifetime, 8*time.Hour)
}

func (s Security) GetRememberMeLifetime() time.Duration {
	return getDuration("REMEMBER_ME_LIFETIME", s.file.Security.RememberMeLifetime, 30*24*time.Hour)
}

// GetCredentialTimeout bounds credential and MFA checks against the backing stores
func (s Security) GetCredentialTimeout() time.Duration {
	return getDuration("CREDENTIAL_TIMEOUT", s.file.Security.CredentialTimeout, 5*time.Second)
}

func (s Security) GetMinPasswordLength() int {
	return getInt("MIN_PASSWORD_LENGTH", s.file.Security.MinPasswordLength, 8)
}

// GetMasterKey returns the root key that tenant data and encryption keys are derived from
func (s Security) GetMasterKey() []byte {
	return decodeKey("MASTER_KEY", s.file.Security.MasterKey, s.ephemeralMaster)
}

// GetConfirmationSigningKey returns the HMAC key for destructive-operation confirmations.
// It must differ from anything used for sessions.
func (s Security) GetConfirmationSigningKey() []byte {
	return decodeKey("CONFIRMATION_SIGNING_KEY", s.file.Security.ConfirmationSigningKey, s.ephemeralConfirm)
}

func (s Security) GetConfirmationTTL() time.Duration {
	return getDuration("CONFIRMATION_TTL", s.file.Security.ConfirmationTTL, 5*time.Minute)
}

func (s Security) GetMFAIssuer() string {
	return GetEnv("MFA_ISSUER", orString(s.file.Security.MFAIssuer, "School Auth"))
}

func (s Security) GetEnableRateLimiting() bool {
	enabled := s.file.Security.RateLimiting.Enabled
	return getBool("ENABLE_RATE_LIMITING", &enabled, false)
}

// GetLoginRateLimit is the sustained login requests per second allowed per client IP
func (s Security) GetLoginRateLimit() float64 {
	return getFloat("LOGIN_RATE_LIMIT", s.file.Security.RateLimiting.RequestsPerSecond, 1)
}

func (s Security) GetLoginRateBurst() int {
	return getInt("LOGIN_RATE_BURST", s.file.Security.RateLimiting.Burst, 5)
}

func decodeKey(envVar, fileValue string, fallback []byte) []byte {
	encoded := GetEnv(envVar, fileValue)
	if encoded == "" {
		return fallback
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) < keyLength {
		log.Warn().Str("setting", envVar).Msg("configured key is not 32+ bytes of base64, using an ephemeral key")
		return fallback
	}
	return key
}

func randomKey() []byte {
	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		panic("config: unable to generate key: " + err.Error())
	}
	return key
}
