package shield

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit allows Requests per WindowSeconds for one client on one path.
type RateLimit struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

func (c RateLimit) window() time.Duration {
	if c.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.WindowSeconds) * time.Second
}

// RateLimiter counts requests per client IP, method and path in an
// in-process store. Expired counters are swept every window.
type RateLimiter struct {
	limiter *limiter.Limiter
	exclude []string // path prefixes never limited
	logger  *slog.Logger
}

// NewRateLimiter creates a limiter. Requests whose path starts with one of
// excludePrefixes are never limited.
func NewRateLimiter(cfg RateLimit, logger *slog.Logger, excludePrefixes ...string) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "pdf2emb",
		CleanUpInterval: cfg.window(),
	})
	rate := limiter.Rate{Period: cfg.window(), Limit: int64(cfg.Requests)}
	return &RateLimiter{
		limiter: limiter.New(store, rate),
		exclude: excludePrefixes,
		logger:  logger,
	}
}

// Middleware enforces the limit with a 429 JSON response and Retry-After.
// Store failures let the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		lc, err := rl.limiter.Get(r.Context(), ip+" "+r.Method+" "+r.URL.Path)
		if err != nil {
			rl.logger.Error("ratelimit: store failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
		if !lc.Reached {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.Warn("ratelimit: request blocked", "ip", ip, "method", r.Method, "path", r.URL.Path)
		wait := max(lc.Reset-time.Now().Unix(), 1)
		w.Header().Set("Retry-After", strconv.FormatInt(wait, 10))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
