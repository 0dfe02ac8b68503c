package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// okHandler answers 200 so middleware tests can tell pass-through from
// rejection.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func limitedRequest(method, target, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = remoteAddr
	return req
}

// Test_RateLimit_BurstAdmitsUploadBatch verifies a batch of document uploads
// within the burst capacity all reach the handler.
func Test_RateLimit_BurstAdmitsUploadBatch(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(100, 5, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	for i := range 5 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, limitedRequest(http.MethodPost, "/api/documents", "127.0.0.1:12345"))
		if w.Code != http.StatusOK {
			t.Errorf("upload %d: status = %d, want 200", i, w.Code)
		}
	}
}

// Test_RateLimit_RejectsSustainedSearches verifies that search traffic past
// the burst is answered with 429 and a Retry-After hint.
func Test_RateLimit_RejectsSustainedSearches(t *testing.T) {
	t.Parallel()

	// Two-token burst with a negligible refill rate: the third search in
	// quick succession must be rejected.
	rl, stop := newRateLimiter(0.001, 2, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	for i := range 2 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, limitedRequest(http.MethodPost, "/api/search", "10.0.0.1:9999"))
		if w.Code != http.StatusOK {
			t.Fatalf("search %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, limitedRequest(http.MethodPost, "/api/search", "10.0.0.1:9999"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third search: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response is missing the Retry-After header")
	}
}

// Test_RateLimit_ClientsAreIndependent verifies each remote address gets its
// own token bucket: one user exhausting theirs does not slow another's.
func Test_RateLimit_ClientsAreIndependent(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	for range 5 {
		h.ServeHTTP(httptest.NewRecorder(), limitedRequest(http.MethodGet, "/api/documents", "192.168.1.1:1111"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, limitedRequest(http.MethodGet, "/api/documents", "192.168.1.2:2222"))
	if w.Code != http.StatusOK {
		t.Errorf("second client: status = %d, want 200 despite first client's exhaustion", w.Code)
	}
}

// Test_RateLimit_PrunesIdleClients verifies the prune pass drops buckets not
// seen within the idle TTL while keeping active ones.
func Test_RateLimit_PrunesIdleClients(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, slog.Default())
	defer stop()

	rl.bucketFor("10.0.0.8")
	rl.bucketFor("10.0.0.9")
	rl.mu.Lock()
	rl.clients["10.0.0.9"].seen = time.Now().Add(-clientIdleTTL - time.Minute)
	rl.mu.Unlock()

	rl.prune()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.clients["10.0.0.9"]; ok {
		t.Error("idle client survived the prune pass")
	}
	if _, ok := rl.clients["10.0.0.8"]; !ok {
		t.Error("active client was pruned")
	}
}

// Test_ClientIP verifies port stripping across the RemoteAddr shapes the
// standard library produces.
func Test_ClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		want       string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"10.0.0.1:80", "10.0.0.1"},
		{"::1:8080", "::1"},
		{"noport", "noport"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.want {
			t.Errorf("clientIP(%q) = %q, want %q", tc.remoteAddr, got, tc.want)
		}
	}
}
