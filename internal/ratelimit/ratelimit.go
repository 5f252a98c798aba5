package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerUser owns one token bucket per user. A denied check never blocks and
// never errors; callers translate denial into a "queued, retry later"
// response rather than a hard rejection.
type PerUser struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     float64
	burst   int
	stop    chan struct{}
}

func NewPerUser(rps float64, burst int) *PerUser {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	limiter := &PerUser{
		buckets: make(map[string]*bucket),
		rps:     rps,
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go limiter.janitor()
	return limiter
}

// Allow consumes one token from the user's bucket.
func (l *PerUser) Allow(userID string) bool {
	return l.bucketFor(userID).Allow()
}

// RetryAfter is the client-side retry hint handed out on denial: the time
// until one token refills.
func (l *PerUser) RetryAfter() time.Duration {
	return time.Duration(float64(time.Second) / l.rps)
}

func (l *PerUser) Close() {
	close(l.stop)
}

func (l *PerUser) bucketFor(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (l *PerUser) janitor() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for key, b := range l.buckets {
				if time.Since(b.lastSeen) > 3*time.Minute {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
