package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const configFileEnvVar = "CONFIG_FILE"

type Config interface {
	EnvConfig
	CorsConfig
	SecurityConfig
	AuditConfig
	StorageConfig
	TenantsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Security
	Audit
	Storage
	Tenants
}

// FileConfig mirrors the optional YAML configuration file. Every value can be
// overridden by its environment variable.
type FileConfig struct {
	App struct {
		Name     string `yaml:"name"`
		Port     string `yaml:"port"`
		BaseURL  string `yaml:"base_url"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`
	Cors struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	Security struct {
		MaxFailedAttempts      int    `yaml:"max_failed_attempts"`
		LockoutDuration        string `yaml:"lockout_duration"`
		SessionLifetime        string `yaml:"session_lifetime"`
		RememberMeLifetime     string `yaml:"remember_me_lifetime"`
		CredentialTimeout      string `yaml:"credential_timeout"`
		MinPasswordLength      int    `yaml:"min_password_length"`
		MasterKey              string `yaml:"master_key"`
		ConfirmationSigningKey string `yaml:"confirmation_signing_key"`
		ConfirmationTTL        string `yaml:"confirmation_ttl"`
		MFAIssuer              string `yaml:"mfa_issuer"`
		RateLimiting           struct {
			Enabled           bool    `yaml:"enabled"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"rate_limiting"`
	} `yaml:"security"`
	Audit struct {
		QueueSize       int    `yaml:"queue_size"`
		RetryBaseDelay  string `yaml:"retry_base_delay"`
		RetryMaxDelay   string `yaml:"retry_max_delay"`
		DeadLetterGrace string `yaml:"dead_letter_grace"`
	} `yaml:"audit"`
	Storage struct {
		Backend     string `yaml:"backend"`
		Path        string `yaml:"path"`
		WALMode     *bool  `yaml:"wal_mode"`
		BusyTimeout int    `yaml:"busy_timeout"`
	} `yaml:"storage"`
	Tenants    []TenantSeed `yaml:"tenants"`
	SuperAdmin struct {
		Email         string `yaml:"email"`
		DefaultTenant string `yaml:"default_tenant"`
	} `yaml:"super_admin"`
}

// New returns a configuration backed by environment variables and defaults.
// If CONFIG_FILE is set, the file is loaded first.
func New() Config {
	if path := os.Getenv(configFileEnvVar); path != "" {
		c, err := Load(path)
		if err == nil {
			return c
		}
		log.Error().Err(err).Str("path", path).Msg("ignoring config file")
	}
	return fromFile(&FileConfig{})
}

// Load reads a YAML configuration file. Environment variables still take precedence.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (Config, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := validateTenants(&fc); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return fromFile(&fc), nil
}

func fromFile(fc *FileConfig) mainConfig {
	return mainConfig{
		EnvVars:  EnvVars{file: fc},
		Cors:     Cors{file: fc},
		Security: newSecurity(fc),
		Audit:    Audit{file: fc},
		Storage:  Storage{file: fc},
		Tenants:  Tenants{file: fc},
	}
}
