// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Pool and calibration inputs (§6 "External interfaces").
	StatementPoolPath string // CSV path; required.
	CalibrationPath   string // YAML path; empty triggers the uncalibrated fallback.

	// Persistence.
	SQLiteDSN string // Path to the SQLite database file, or ":memory:" for an in-process store.

	// Session defaults (§4.9 Config).
	DefaultBlockCount int
	SessionTTL        time.Duration

	// IRT tuning (§4.5).
	IRTTolerance     float64
	IRTMaxIterations int

	// Response-time plausibility check (§4.4).
	SuspiciousResponseTimeMinMs int
	SuspiciousResponseTimeMaxMs int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool // Use HTTP instead of HTTPS for OTEL exporter (default: false).
	ServiceName  string

	// CORS settings.
	CORSAllowedOrigins []string // Allowed origins for CORS; ["*"] permits all.

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults
// and validates the result. Returns an error if any environment variable
// contains an unparseable value, or if a required field is still missing
// after parsing.
func Load() (Config, error) {
	cfg, err := LoadEnv()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnv reads configuration from environment variables with sensible
// defaults but does not validate required fields. Callers that override
// fields programmatically (e.g. quartet.New's Option overrides) should call
// LoadEnv and then Validate once overrides are applied.
func LoadEnv() (Config, error) {
	var errs []error
	cfg := Config{
		StatementPoolPath:  envStr("QUARTET_STATEMENT_POOL", ""),
		CalibrationPath:    envStr("QUARTET_CALIBRATION", ""),
		SQLiteDSN:          envStr("QUARTET_SQLITE_DSN", ":memory:"),
		OTELEndpoint:       envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:        envStr("OTEL_SERVICE_NAME", "quartet"),
		LogLevel:           envStr("QUARTET_LOG_LEVEL", "info"),
		CORSAllowedOrigins: envStrSlice("QUARTET_CORS_ALLOWED_ORIGINS", nil),
	}

	// Integer fields.
	cfg.Port, errs = collectInt(errs, "QUARTET_PORT", 8080)
	cfg.DefaultBlockCount, errs = collectInt(errs, "QUARTET_DEFAULT_BLOCK_COUNT", 30)
	cfg.IRTMaxIterations, errs = collectInt(errs, "QUARTET_IRT_MAX_ITERATIONS", 200)
	cfg.SuspiciousResponseTimeMinMs, errs = collectInt(errs, "QUARTET_MIN_RESPONSE_TIME_MS", 500)
	cfg.SuspiciousResponseTimeMaxMs, errs = collectInt(errs, "QUARTET_MAX_RESPONSE_TIME_MS", 120000)

	var maxReqBody int
	maxReqBody, errs = collectInt(errs, "QUARTET_MAX_REQUEST_BODY_BYTES", 1*1024*1024)
	cfg.MaxRequestBodyBytes = int64(maxReqBody)

	// Boolean fields.
	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	// Duration fields.
	cfg.ReadTimeout, errs = collectDuration(errs, "QUARTET_READ_TIMEOUT", 30*time.Second)
	cfg.WriteTimeout, errs = collectDuration(errs, "QUARTET_WRITE_TIMEOUT", 30*time.Second)
	cfg.SessionTTL, errs = collectDuration(errs, "QUARTET_SESSION_TTL", 2*time.Hour)

	// Float fields.
	cfg.IRTTolerance, errs = collectFloat(errs, "QUARTET_IRT_TOLERANCE", 1e-6)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	return cfg, nil
}

// collectInt parses an int env var, appending any error to the accumulator.
func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectBool parses a bool env var, appending any error to the accumulator.
func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectDuration parses a duration env var, appending any error to the accumulator.
func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectFloat parses a float64 env var, appending any error to the accumulator.
func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v, err := envFloat(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	var errs []error

	if c.StatementPoolPath == "" {
		errs = append(errs, errors.New("config: QUARTET_STATEMENT_POOL is required"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("config: QUARTET_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.New("config: QUARTET_PORT must be between 1 and 65535"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("config: QUARTET_READ_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("config: QUARTET_WRITE_TIMEOUT must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("config: QUARTET_SESSION_TTL must be positive"))
	}
	if c.DefaultBlockCount < 5 || c.DefaultBlockCount > 30 {
		errs = append(errs, errors.New("config: QUARTET_DEFAULT_BLOCK_COUNT must be between 5 and 30"))
	}
	if c.IRTMaxIterations <= 0 {
		errs = append(errs, errors.New("config: QUARTET_IRT_MAX_ITERATIONS must be positive"))
	}
	if c.IRTTolerance <= 0 {
		errs = append(errs, errors.New("config: QUARTET_IRT_TOLERANCE must be positive"))
	}
	if c.SuspiciousResponseTimeMinMs < 0 {
		errs = append(errs, errors.New("config: QUARTET_MIN_RESPONSE_TIME_MS must be >= 0"))
	}
	if c.SuspiciousResponseTimeMaxMs <= c.SuspiciousResponseTimeMinMs {
		errs = append(errs, errors.New("config: QUARTET_MAX_RESPONSE_TIME_MS must exceed QUARTET_MIN_RESPONSE_TIME_MS"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

// envStrSlice reads a comma-separated env var into a string slice.
// Returns fallback if the env var is empty or unset.
func envStrSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
