package quartet

import "log/slog"

// Option configures an Engine.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port              int
	statementPoolPath string
	calibrationPath   string
	sqliteDSN         string
	logger            *slog.Logger
	version           string
	resultHooks       []ResultHook
	routeRegistrars   []RouteRegistrar
	middlewares       []Middleware
}

// WithPort overrides the TCP port from config (QUARTET_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithStatementPoolPath overrides the statement pool CSV path from config
// (QUARTET_STATEMENT_POOL env var).
func WithStatementPoolPath(path string) Option {
	return func(o *resolvedOptions) { o.statementPoolPath = path }
}

// WithCalibrationPath overrides the calibration YAML path from config
// (QUARTET_CALIBRATION env var). An empty path keeps the uncalibrated
// fallback bundle.
func WithCalibrationPath(path string) Option {
	return func(o *resolvedOptions) { o.calibrationPath = path }
}

// WithSQLiteDSN overrides the session store's SQLite DSN from config
// (QUARTET_SQLITE_DSN env var). ":memory:" selects an in-process store.
func WithSQLiteDSN(dsn string) Option {
	return func(o *resolvedOptions) { o.sqliteDSN = dsn }
}

// WithLogger sets the structured logger for the Engine. If not set, the
// default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the startup log line and
// the telemetry resource. The health endpoint does not report it.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithResultHook registers a hook invoked asynchronously whenever a
// session is scored. Multiple hooks may be registered.
func WithResultHook(hook ResultHook) Option {
	return func(o *resolvedOptions) { o.resultHooks = append(o.resultHooks, hook) }
}

// WithExtraRoutes records a RouteRegistrar on the Engine's options.
// Multiple registrars may be recorded. New does not pass recorded
// registrars to the HTTP server, so they add no routes.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware records a Middleware on the Engine's options. Multiple
// middlewares may be recorded. New does not apply recorded middlewares to
// the HTTP server's handler chain.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
