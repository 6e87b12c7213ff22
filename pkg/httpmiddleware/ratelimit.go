package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window and key.
	Max    int
	Window time.Duration
	// KeyFunc defaults to MerchantOrIPKey.
	KeyFunc func(*http.Request) string
}

// window counts requests in the current and the previous fixed window.
// The previous count is weighted by how much of it the sliding window
// still covers.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max   int
	size  time.Duration
	key   func(*http.Request) string
	now   func() time.Time
	mu    sync.Mutex
	byKey map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = MerchantOrIPKey
	}
	return &limiter{
		max:   cfg.Max,
		size:  cfg.Window,
		key:   cfg.KeyFunc,
		now:   time.Now,
		byKey: make(map[string]*window),
	}
}

// take consumes one request for key and reports the remaining budget and
// the end of the current window.
func (l *limiter) take(key string) (remaining int, reset time.Time, ok bool) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.byKey[key]
	if !found {
		w = &window{start: now.Truncate(l.size)}
		l.byKey[key] = w
	}
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*l.size:
		*w = window{start: now.Truncate(l.size)}
	case elapsed >= l.size:
		*w = window{start: w.start.Add(l.size), prev: w.curr}
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.size)
	used := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(l.size)
	if used >= float64(l.max) {
		return 0, reset, false
	}
	w.curr++
	return max(l.max-int(math.Ceil(used+1)), 0), reset, true
}

// sweep drops keys idle for two windows.
func (l *limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.byKey {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.byKey, k)
		}
	}
}

// RateLimit limits requests per key and answers 429 with Retry-After once
// the budget is spent. Idle keys are swept until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		t := time.NewTicker(2 * l.size)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.sweep()
			}
		}
	}()
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, reset, ok := l.take(l.key(r))
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			retry := math.Ceil(reset.Sub(l.now()).Seconds())
			h.Set("Retry-After", strconv.Itoa(int(math.Max(retry, 0))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MerchantOrIPKey keys API requests by merchant and everything else by
// client address.
func MerchantOrIPKey(r *http.Request) string {
	if m := r.Header.Get(MerchantHeader); m != "" {
		return "merchant:" + m
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
