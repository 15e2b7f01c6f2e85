package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "parkline/pkg/errors"
	"parkline/pkg/logger"

	"golang.org/x/time/rate"
)

const RequesterIDHeader = "X-Requester-ID"

type RequesterExtractor func(r *http.Request) string

type requesterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RequesterRateLimiter keeps one token bucket per requester id.
type RequesterRateLimiter struct {
	mu        sync.Mutex
	entries   map[string]*requesterEntry
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	extractor RequesterExtractor
	log       *logger.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewRequesterRateLimiter allows requests per window with the given burst for each requester.
func NewRequesterRateLimiter(requests int, window time.Duration, burst int, extractor RequesterExtractor, log *logger.Logger) *RequesterRateLimiter {
	if extractor == nil {
		extractor = DefaultRequesterExtractor
	}
	if burst <= 0 {
		burst = 1
	}
	idleTTL := window
	if idleTTL < time.Minute {
		idleTTL = time.Minute
	}
	rl := &RequesterRateLimiter{
		entries:   make(map[string]*requesterEntry),
		limit:     rate.Limit(float64(requests) / window.Seconds()),
		burst:     burst,
		idleTTL:   idleTTL,
		extractor: extractor,
		log:       log,
		stopCh:    make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (rl *RequesterRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RequesterRateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, e := range rl.entries {
		if now.Sub(e.lastSeen) > rl.idleTTL {
			delete(rl.entries, id)
		}
	}
}

func (rl *RequesterRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow reports whether requesterID may proceed now. Anonymous requests are not limited.
func (rl *RequesterRateLimiter) Allow(requesterID string) bool {
	if requesterID == "" {
		return true
	}

	rl.mu.Lock()
	e, ok := rl.entries[requesterID]
	if !ok {
		e = &requesterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.entries[requesterID] = e
	}
	e.lastSeen = time.Now()
	rl.mu.Unlock()

	return e.limiter.Allow()
}

func (rl *RequesterRateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

func RequesterRateLimit(limiter *RequesterRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requesterID := limiter.extractor(r)
			if limiter.Allow(requesterID) {
				next.ServeHTTP(w, r)
				return
			}

			limiter.log.Warn("Rate limit exceeded",
				"request_id", RequestIDFromContext(r.Context()),
				"requester_id", requesterID,
				"path", r.URL.Path,
			)
			retryAfter := 1
			if limiter.limit > 0 {
				retryAfter = max(1, int(1/float64(limiter.limit)))
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			apperrors.WriteError(w, apperrors.New(apperrors.CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests))
		})
	}
}

func DefaultRequesterExtractor(r *http.Request) string {
	return r.Header.Get(RequesterIDHeader)
}
