package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	uploadLimiterStaleAfter    = 10 * time.Minute
	uploadLimiterCleanupEveryN = 64
)

// uploadRateLimiter hands out one token bucket per client address.
type uploadRateLimiter struct {
	mu            sync.Mutex
	entries       map[string]*uploadRateLimitEntry
	limit         rate.Limit
	burst         int
	staleAfter    time.Duration
	opCount       int
	cleanupEveryN int
}

type uploadRateLimitEntry struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// newUploadRateLimiter returns nil, which allows everything, when perSecond <= 0.
func newUploadRateLimiter(perSecond float64, burst int) *uploadRateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &uploadRateLimiter{
		entries:       make(map[string]*uploadRateLimitEntry),
		limit:         rate.Limit(perSecond),
		burst:         burst,
		staleAfter:    uploadLimiterStaleAfter,
		cleanupEveryN: uploadLimiterCleanupEveryN,
	}
}

func (l *uploadRateLimiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &uploadRateLimitEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeenAt = now
	l.maybeCleanupLocked(now)

	return entry.limiter.AllowN(now, 1)
}

func (l *uploadRateLimiter) maybeCleanupLocked(now time.Time) {
	l.opCount++
	if l.opCount%l.cleanupEveryN != 0 {
		return
	}
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeenAt) > l.staleAfter {
			delete(l.entries, key)
		}
	}
}

func (s *Server) withUploadRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.uploadLimiter.Allow(clientKey(r), time.Now()) {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, r, makeAPIError(http.StatusTooManyRequests, KindRateLimited, ErrCodeRateLimited, msgTooManyRequests, nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the remote host. RemoteAddr only reflects forwarding headers
// when the server was configured to trust them.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
