package shield

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Write([]byte("OK"))
	})
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(APIHeaders())(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/runs", nil))

	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}

	h = SecurityHeaders(HeaderConfig{XFrameOptions: "SAMEORIGIN"})(okHandler())
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Header().Get("Content-Security-Policy") != "" {
		t.Error("empty header values must not be set")
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(8)(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/scrape", strings.NewReader("short")))
	if w.Code != http.StatusOK {
		t.Fatalf("small body: %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/scrape", strings.NewReader(strings.Repeat("x", 64))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("large body: %d", w.Code)
	}
}

func TestHeadToGet(t *testing.T) {
	w := httptest.NewRecorder()
	HeadToGet(okHandler()).ServeHTTP(w, httptest.NewRequest("HEAD", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("HEAD: %d", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	// WHAT: The N+1th request in a window gets 429 for that client and path
	// only; excluded paths are never counted.
	rl := NewRateLimiter(RateLimit{Requests: 2, WindowSeconds: 60}, quiet(), "/health")
	h := rl.Middleware(okHandler())

	do := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, strings.NewReader("{}"))
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := do("/api/scrape", "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i+1, w.Code)
		}
	}
	w := do("/api/scrape", "10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d", w.Code)
	}
	if wait, err := strconv.Atoi(w.Header().Get("Retry-After")); err != nil || wait < 1 || wait > 60 {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", w.Header().Get("X-RateLimit-Remaining"))
	}

	if w := do("/api/scrape", "10.0.0.2"); w.Code != http.StatusOK {
		t.Errorf("other client limited: %d", w.Code)
	}
	if w := do("/api/runs", "10.0.0.1"); w.Code != http.StatusOK {
		t.Errorf("other path limited: %d", w.Code)
	}
	for i := 0; i < 5; i++ {
		if w := do("/health", "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("excluded path limited: %d", w.Code)
		}
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(RateLimit{Requests: 1, WindowSeconds: 1}, quiet())
	h := rl.Middleware(okHandler())
	do := func() int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/api/runs", nil))
		return w.Code
	}

	if do() != http.StatusOK || do() != http.StatusTooManyRequests {
		t.Fatal("second request in the window must be limited")
	}
	time.Sleep(1100 * time.Millisecond)
	if code := do(); code != http.StatusOK {
		t.Fatalf("after window: %d", code)
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.7:4242"
	if ip := ExtractIP(req); ip != "192.0.2.7" {
		t.Errorf("RemoteAddr ip = %q", ip)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if ip := ExtractIP(req); ip != "203.0.113.9" {
		t.Errorf("XFF ip = %q", ip)
	}
}

func TestAPIStack(t *testing.T) {
	stack := APIStack(Config{}, quiet())
	if len(stack) != 4 {
		t.Fatalf("stack without rate limit has %d middlewares", len(stack))
	}
	stack = APIStack(Config{MaxBodyKB: 1, RateLimit: RateLimit{Requests: 1}}, quiet())
	if len(stack) != 5 {
		t.Fatalf("stack with rate limit has %d middlewares", len(stack))
	}

	var h http.Handler = okHandler()
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/scrape", strings.NewReader(strings.Repeat("x", 2048))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("body over 1 KB: %d", w.Code)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
}
