package auth

import (
	"net/http"

	authlib "example.com/presence/internal/authlib"
)

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	inner authlib.Middleware
}

// NewMiddleware constructs Middleware with validation config. Health checks,
// the metrics scrape and the websocket upgrade stay unauthenticated.
func NewMiddleware(cfg Config) Middleware {
	skipper := func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/metrics", "/v1/events/ws":
			return true
		}
		return false
	}
	return Middleware{inner: authlib.NewMiddleware(authlib.Config(cfg), skipper)}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}
