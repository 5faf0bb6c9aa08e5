package httpapi

import (
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// attemptLimiter allows limit attempts per window for each client key, with
// the full limit available as an initial burst.
type attemptLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*keyLimiter
	now     func() time.Time
}

type keyLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{limit: limit, window: window, entries: make(map[string]*keyLimiter), now: time.Now}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		l.prune(now)
		entry = &keyLimiter{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)}
		l.entries[key] = entry
	}
	entry.last = now
	return entry.limiter.AllowN(now, 1)
}

// prune drops keys idle for longer than a window; their bucket is full again.
func (l *attemptLimiter) prune(now time.Time) {
	for key, entry := range l.entries {
		if now.Sub(entry.last) > l.window {
			delete(l.entries, key)
		}
	}
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
