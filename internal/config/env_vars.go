package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	baseURLVar     = "BASE_URL"
	logLevelEnvVar = "LOG_LEVEL"
)

type EnvVars struct {
	file *FileConfig
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, orString(e.file.App.Port, "8080"))
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, orString(e.file.App.Name, "School Auth"))
}

// GetBaseURL returns the externally visible base URL of the service
func (e EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, orString(e.file.App.BaseURL, "http://localhost:8080"))
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelEnvVar, orString(e.file.App.LogLevel, "info"))
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(envVar string, fileValue, defaultValue int) int {
	if v := os.Getenv(envVar); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	if fileValue != 0 {
		return fileValue
	}
	return defaultValue
}

func getFloat(envVar string, fileValue, defaultValue float64) float64 {
	if v := os.Getenv(envVar); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	if fileValue != 0 {
		return fileValue
	}
	return defaultValue
}

func getBool(envVar string, fileValue *bool, defaultValue bool) bool {
	if v := os.Getenv(envVar); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}

func getDuration(envVar, fileValue string, defaultValue time.Duration) time.Duration {
	for _, v := range []string{os.Getenv(envVar), fileValue} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func orString(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
