package ratelimit

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Options configures a Limiter.
type Options struct {
	// RequestsPerInterval is both the refill budget per Interval and the burst size.
	RequestsPerInterval int
	Interval            time.Duration
	// CleanupInterval controls how often idle clients are forgotten.
	CleanupInterval time.Duration
	// StaleAfter is how long a client must be idle before it is forgotten.
	StaleAfter     time.Duration
	TrustedProxies []string
	// OnReject, if set, is called for every rejected request.
	OnReject func()
}

// Limiter is a per-client-IP token bucket limiter.
type Limiter struct {
	mu             sync.Mutex
	clients        map[string]*client
	limit          rate.Limit
	burst          int
	staleAfter     time.Duration
	trustedProxies map[string]bool
	onReject       func()
	done           chan struct{}
	closeOnce      sync.Once
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter and starts its cleanup loop. Call Close to stop it.
func New(opts Options) (*Limiter, error) {
	if opts.RequestsPerInterval <= 0 {
		return nil, fmt.Errorf("ratelimit: requests_per_interval must be positive")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("ratelimit: interval must be positive")
	}
	if opts.CleanupInterval <= 0 {
		return nil, fmt.Errorf("ratelimit: cleanup_interval must be positive")
	}
	if opts.StaleAfter <= 0 {
		return nil, fmt.Errorf("ratelimit: stale_after must be positive")
	}

	l := &Limiter{
		clients:        make(map[string]*client),
		limit:          rate.Limit(float64(opts.RequestsPerInterval) / opts.Interval.Seconds()),
		burst:          opts.RequestsPerInterval,
		staleAfter:     opts.StaleAfter,
		trustedProxies: make(map[string]bool, len(opts.TrustedProxies)),
		onReject:       opts.OnReject,
		done:           make(chan struct{}),
	}
	for _, p := range opts.TrustedProxies {
		l.trustedProxies[p] = true
	}

	go l.cleanupLoop(opts.CleanupInterval)
	return l, nil
}

func (l *Limiter) bucket(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[ip]
	if !ok {
		c = &client{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = time.Now()
	return c.bucket
}

// Allow reports whether a request from ip may proceed now, consuming a token if so.
func (l *Limiter) Allow(ip string) bool {
	return l.bucket(ip).Allow()
}

// RetryAfter returns the number of whole seconds until ip has a token again.
func (l *Limiter) RetryAfter(ip string) int {
	r := l.bucket(ip).Reserve()
	delay := r.Delay()
	r.Cancel()
	return int(math.Ceil(delay.Seconds()))
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > l.staleAfter {
			delete(l.clients, ip)
		}
	}
}

// Close stops the cleanup loop. It is safe to call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// ClientIP returns the address the request is accounted against. Forwarding
// headers are honoured only when the direct peer is a trusted proxy.
func (l *Limiter) ClientIP(r *http.Request) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}

	l.mu.Lock()
	trusted := l.trustedProxies[remote]
	l.mu.Unlock()
	if !trusted {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Leftmost entry is the originating client.
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return remote
}

// problem is the RFC 7807 body returned on rejection.
type problem struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// Middleware rejects requests over the limit with 429 Too Many Requests.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := l.ClientIP(r)
		if l.Allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if l.onReject != nil {
			l.onReject()
		}
		retryAfter := l.RetryAfter(ip)
		w.Header().Set("Content-Type", "application/problem+json")
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(problem{
			Type:       "about:blank",
			Title:      http.StatusText(http.StatusTooManyRequests),
			Status:     http.StatusTooManyRequests,
			Detail:     fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter),
			RetryAfter: retryAfter,
		})
	})
}
