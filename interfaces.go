package quartet

import (
	"context"
	"net/http"
)

// ResultHook receives an asynchronous notification whenever a session is
// scored. Multiple hooks may be registered via multiple WithResultHook
// calls; all registered hooks receive every event. Hook methods run in a
// goroutine and must not block indefinitely — failures are logged but never
// fail the originating submit_responses call.
type ResultHook interface {
	OnScored(ctx context.Context, result Result) error
}

// RouteRegistrar registers additional routes on an HTTP mux. Registrars
// supplied via WithExtraRoutes are stored but never called: New builds the
// server's mux with the built-in §6 Core API routes and /health only.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps an HTTP handler. Middlewares supplied via WithMiddleware
// are stored but never applied: the server's handler chain consists of the
// built-in middleware only.
type Middleware func(http.Handler) http.Handler
