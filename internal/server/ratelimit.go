package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/edurag/edurag-go/internal/logging"
)

// Default per-client limits, sized for interactive use. Searches are cheap
// but each upload runs the full extraction and embedding pipeline, so the
// sustained rate stays low while the burst absorbs a batch of uploads.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// Idle clients are pruned so the map does not grow with every address that
// ever connected.
const (
	pruneInterval = time.Minute
	clientIdleTTL = 5 * time.Minute
)

// client is one remote address's token bucket.
type client struct {
	bucket *rate.Limiter
	// seen is refreshed on every request and drives idle pruning.
	seen time.Time
}

// rateLimiter enforces a per-client token-bucket limit in front of the
// document and search endpoints.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client

	rps   rate.Limit
	burst int
	log   *slog.Logger
}

// newRateLimiter builds the limiter and starts its pruning goroutine. The
// returned stop function terminates the goroutine.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		clients: make(map[string]*client),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}
	done := make(chan struct{})
	go rl.pruneLoop(done)
	return rl, func() { close(done) }
}

// bucketFor returns the token bucket for ip, creating it on first contact.
func (rl *rateLimiter) bucketFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[ip]
	if !ok {
		c = &client{bucket: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = c
	}
	c.seen = time.Now()
	return c.bucket
}

func (rl *rateLimiter) pruneLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

// prune drops clients idle longer than clientIdleTTL.
func (rl *rateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-clientIdleTTL)
	dropped := 0
	for ip, c := range rl.clients {
		if c.seen.Before(cutoff) {
			delete(rl.clients, ip)
			dropped++
		}
	}
	if dropped > 0 {
		rl.log.Debug("pruned idle rate-limit clients", slog.Int("count", dropped))
	}
}

// middleware rejects requests over the limit with 429 and a Retry-After
// hint before they reach the upload or search handlers.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.bucketFor(ip).Allow() {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. X-Forwarded-For is ignored:
// the service fronts no trusted proxy.
func clientIP(r *http.Request) string {
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
