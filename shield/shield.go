// Package shield provides the HTTP middleware stack of the pdf2emb API:
// security headers, body limits, HEAD handling, access logging and per-client
// rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(cfg, logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Config tunes the stack built by APIStack.
type Config struct {
	// MaxBodyKB caps request bodies (0: 1024 KB).
	MaxBodyKB int `yaml:"max_body_kb"`

	// RateLimit applies per client IP and route. A zero Requests disables it.
	RateLimit RateLimit `yaml:"rate_limit"`
}

// APIStack returns the standard middleware stack for the JSON API, ordered:
// HeadToGet, SecurityHeaders, MaxBody, AccessLog, rate limiter. /health is
// never rate limited.
func APIStack(cfg Config, logger *slog.Logger) []func(http.Handler) http.Handler {
	maxBody := int64(cfg.MaxBodyKB) * 1024
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(maxBody),
		AccessLog(logger),
	}
	if cfg.RateLimit.Requests > 0 {
		stack = append(stack, NewRateLimiter(cfg.RateLimit, logger, "/health").Middleware)
	}
	return stack
}

// HeadToGet serves HEAD requests with the GET handlers; net/http drops the
// body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// AccessLog logs one line per request with its status and duration. The
// request ID set by chi's RequestID middleware is included when present.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", ExtractIP(r),
			}
			if id := middleware.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			logger.Info("http request", attrs...)
		})
	}
}
