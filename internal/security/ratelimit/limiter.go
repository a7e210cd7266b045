package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter applies a token bucket per key, typically the client IP
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	maxReqs int
	window  time.Duration
	now     func() time.Time
	cleanup *time.Ticker
	done    chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows maxRequests per window for every key, all of them
// available as a burst. A non-positive maxRequests disables limiting.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		burst:   maxRequests,
		maxReqs: maxRequests,
		window:  window,
		now:     time.Now,
		cleanup: time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
	}
	if maxRequests > 0 && window > 0 {
		l.limit = rate.Limit(float64(maxRequests) / window.Seconds())
	}
	go l.cleanupOldBuckets()
	return l
}

// Allow reports whether a request for key may proceed now
func (l *Limiter) Allow(key string) bool {
	_, ok := l.reserve(key)
	return ok
}

// Reserve is Allow that also reports how long to wait when refused
func (l *Limiter) Reserve(key string) (retryAfter time.Duration, ok bool) {
	return l.reserve(key)
}

func (l *Limiter) reserve(key string) (time.Duration, bool) {
	if key == "" || l.maxReqs <= 0 {
		return 0, true
	}
	now := l.now()

	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return 0, true
	}
	r := b.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay, false
}

// Limit returns the configured requests per window
func (l *Limiter) Limit() (int, time.Duration) {
	return l.maxReqs, l.window
}

func (l *Limiter) cleanupOldBuckets() {
	for {
		select {
		case <-l.done:
			return
		case <-l.cleanup.C:
			l.evictIdle(15 * time.Minute)
		}
	}
}

func (l *Limiter) evictIdle(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	staleThreshold := l.now().Add(-idle)
	for key, b := range l.buckets {
		if b.lastSeen.Before(staleThreshold) {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the background cleanup
func (l *Limiter) Stop() {
	l.cleanup.Stop()
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}
