package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloatValid(t *testing.T) {
	t.Setenv("TEST_FLOAT", "1e-6")
	v, err := envFloat("TEST_FLOAT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1e-6 {
		t.Fatalf("expected 1e-6, got %v", v)
	}
}

func TestEnvFloatInvalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_BAD", "not-a-number")
	_, err := envFloat("TEST_FLOAT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-float value, got nil")
	}
}

func validLoad(t *testing.T) {
	t.Helper()
	t.Setenv("QUARTET_STATEMENT_POOL", "/tmp/quartet-test-statements.csv")
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	validLoad(t)
	t.Setenv("QUARTET_PORT", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid QUARTET_PORT")
	}
	if got := err.Error(); !contains(got, "QUARTET_PORT") || !contains(got, "abc") {
		t.Fatalf("error should mention QUARTET_PORT and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	validLoad(t)
	t.Setenv("QUARTET_PORT", "abc")
	t.Setenv("QUARTET_DEFAULT_BLOCK_COUNT", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "QUARTET_PORT") {
		t.Fatalf("error should mention QUARTET_PORT, got: %s", got)
	}
	if !contains(got, "QUARTET_DEFAULT_BLOCK_COUNT") {
		t.Fatalf("error should mention QUARTET_DEFAULT_BLOCK_COUNT, got: %s", got)
	}
}

func TestLoadFailsWithoutStatementPool(t *testing.T) {
	// QUARTET_STATEMENT_POOL intentionally left unset.
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail without QUARTET_STATEMENT_POOL")
	}
	if !contains(err.Error(), "QUARTET_STATEMENT_POOL") {
		t.Fatalf("error should mention QUARTET_STATEMENT_POOL, got: %s", err.Error())
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	validLoad(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DefaultBlockCount != 30 {
		t.Fatalf("expected default block count 30, got %d", cfg.DefaultBlockCount)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("expected default session TTL 2h, got %s", cfg.SessionTTL)
	}
	if cfg.CalibrationPath != "" {
		t.Fatalf("expected empty calibration path by default, got %q", cfg.CalibrationPath)
	}
	if cfg.SQLiteDSN != ":memory:" {
		t.Fatalf("expected default SQLite DSN :memory:, got %q", cfg.SQLiteDSN)
	}
}

func TestLoadRejectsBlockCountOutOfRange(t *testing.T) {
	validLoad(t)
	t.Setenv("QUARTET_DEFAULT_BLOCK_COUNT", "3")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with block count below 5")
	}
}

func TestLoadRejectsInvertedResponseTimeBounds(t *testing.T) {
	validLoad(t)
	t.Setenv("QUARTET_MIN_RESPONSE_TIME_MS", "5000")
	t.Setenv("QUARTET_MAX_RESPONSE_TIME_MS", "1000")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when min response time exceeds max")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestLoad_OTELEndpointParsing(t *testing.T) {
	validLoad(t)
	endpoint := "https://otel.example.com:4317"
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", endpoint)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.OTELEndpoint != endpoint {
		t.Fatalf("expected OTELEndpoint %q, got %q", endpoint, cfg.OTELEndpoint)
	}
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("QUARTET_STATEMENT_POOL", "/tmp/pool.csv")
	t.Setenv("QUARTET_CALIBRATION", "/tmp/calibration.yaml")
	t.Setenv("QUARTET_PORT", "9090")
	t.Setenv("QUARTET_SQLITE_DSN", "/tmp/quartet.db")
	t.Setenv("QUARTET_DEFAULT_BLOCK_COUNT", "24")
	t.Setenv("QUARTET_SESSION_TTL", "45m")
	t.Setenv("QUARTET_IRT_TOLERANCE", "1e-5")
	t.Setenv("QUARTET_IRT_MAX_ITERATIONS", "150")
	t.Setenv("OTEL_SERVICE_NAME", "quartet-test")
	t.Setenv("QUARTET_LOG_LEVEL", "debug")
	t.Setenv("QUARTET_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}

	if cfg.Port != 9090 {
		t.Fatalf("expected Port 9090, got %d", cfg.Port)
	}
	if cfg.StatementPoolPath != "/tmp/pool.csv" {
		t.Fatalf("expected StatementPoolPath %q, got %q", "/tmp/pool.csv", cfg.StatementPoolPath)
	}
	if cfg.CalibrationPath != "/tmp/calibration.yaml" {
		t.Fatalf("expected CalibrationPath %q, got %q", "/tmp/calibration.yaml", cfg.CalibrationPath)
	}
	if cfg.SQLiteDSN != "/tmp/quartet.db" {
		t.Fatalf("expected SQLiteDSN %q, got %q", "/tmp/quartet.db", cfg.SQLiteDSN)
	}
	if cfg.DefaultBlockCount != 24 {
		t.Fatalf("expected DefaultBlockCount 24, got %d", cfg.DefaultBlockCount)
	}
	if cfg.SessionTTL != 45*time.Minute {
		t.Fatalf("expected SessionTTL 45m, got %s", cfg.SessionTTL)
	}
	if cfg.IRTTolerance != 1e-5 {
		t.Fatalf("expected IRTTolerance 1e-5, got %v", cfg.IRTTolerance)
	}
	if cfg.IRTMaxIterations != 150 {
		t.Fatalf("expected IRTMaxIterations 150, got %d", cfg.IRTMaxIterations)
	}
	if cfg.ServiceName != "quartet-test" {
		t.Fatalf("expected ServiceName %q, got %q", "quartet-test", cfg.ServiceName)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel %q, got %q", "debug", cfg.LogLevel)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %d", len(cfg.CORSAllowedOrigins))
	}
	if cfg.CORSAllowedOrigins[0] != "https://a.example.com" {
		t.Fatalf("expected first CORS origin %q, got %q", "https://a.example.com", cfg.CORSAllowedOrigins[0])
	}
	if cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("expected second CORS origin %q, got %q", "https://b.example.com", cfg.CORSAllowedOrigins[1])
	}
}
