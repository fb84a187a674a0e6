package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/moogar0880/problems"

	"github.com/Strob0t/ReleaseForge/internal/config"
	"github.com/Strob0t/ReleaseForge/internal/resilience"
)

// maxClients caps the number of tracked client buckets.
const maxClients = 100000

// RateLimiter throttles each client IP with a token bucket. Rejections are
// answered with the same problem body as a failed save, classed rate_limit
// and retryable, so API clients back off with the long rate-limit delay.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*tokenBucket
	perSec  float64
	burst   float64
	now     func() time.Time
}

type tokenBucket struct {
	tokens float64
	filled time.Time // last refill
}

// verdict is the outcome of taking one token.
type verdict struct {
	allowed   bool
	remaining int
	wait      time.Duration // until the next token
}

// NewRateLimiter allows perSec sustained requests per client with bursts of
// up to burst.
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*tokenBucket),
		perSec:  perSec,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// NewRateLimiterFromConfig creates a rate limiter from the rate section.
func NewRateLimiterFromConfig(cfg config.Rate) *RateLimiter {
	return NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
}

// rateLimitProblem mirrors the body of a failed save.
type rateLimitProblem struct {
	Type      string           `json:"type"`
	Title     string           `json:"title"`
	Status    int              `json:"status"`
	Detail    string           `json:"detail"`
	Instance  string           `json:"instance"`
	Class     resilience.Class `json:"class"`
	Retryable bool             `json:"retryable"`
}

// Handler enforces the limit in front of next.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := rl.take(clientIP(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(int(rl.burst)))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(v.wait).Unix(), 10))
		if v.allowed {
			next.ServeHTTP(w, r)
			return
		}

		h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(v.wait)))
		h.Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusTooManyRequests)
		p := problems.NewStatusProblem(http.StatusTooManyRequests).
			WithInstance(r.URL.Path).
			WithType(string(resilience.ClassRateLimit)).
			WithDetail(resilience.MessageFor(resilience.ClassRateLimit))
		_ = json.NewEncoder(w).Encode(rateLimitProblem{
			Type:      p.Type,
			Title:     p.Title,
			Status:    p.Status,
			Detail:    p.Detail,
			Instance:  p.Instance,
			Class:     resilience.ClassRateLimit,
			Retryable: true,
		})
	})
}

// retryAfterSeconds rounds wait up to whole seconds, never below one.
func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}

// take refills the client's bucket and spends one token if there is one.
func (rl *RateLimiter) take(ip string) verdict {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	nextToken := time.Duration(float64(time.Second) / rl.perSec)
	b, ok := rl.clients[ip]
	if !ok {
		if len(rl.clients) >= maxClients {
			return verdict{wait: nextToken}
		}
		b = &tokenBucket{tokens: rl.burst, filled: now}
		rl.clients[ip] = b
	}

	b.tokens = min(rl.burst, b.tokens+now.Sub(b.filled).Seconds()*rl.perSec)
	b.filled = now
	if b.tokens < 1 {
		missing := (1 - b.tokens) / rl.perSec
		return verdict{wait: time.Duration(missing * float64(time.Second))}
	}
	b.tokens--
	return verdict{allowed: true, remaining: int(b.tokens)}
}

// StartCleanup forgets clients idle for longer than maxIdle, checking every
// interval. The returned func stops it.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				rl.cleanup(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-maxIdle)
	for ip, b := range rl.clients {
		if b.filled.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// clientIP is the peer address. Forwarding headers are ignored so clients
// cannot pick their own bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
