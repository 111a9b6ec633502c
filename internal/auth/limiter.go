package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// AttemptLimiter throttles secret attempts per user.
type AttemptLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*userLimiter
	r        rate.Limit
	b        int
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewAttemptLimiter allows perMinute attempts per user with the given burst.
// A non-positive perMinute disables limiting.
func NewAttemptLimiter(perMinute, burst int) *AttemptLimiter {
	l := &AttemptLimiter{
		limiters: make(map[int64]*userLimiter),
		r:        rate.Inf,
		b:        burst,
		stopCh:   make(chan struct{}),
	}
	if perMinute > 0 {
		l.r = rate.Limit(float64(perMinute) / 60.0)
	}
	if l.b <= 0 {
		l.b = 1
	}
	go l.cleanup()
	return l
}

// Allow consumes one attempt for userID.
func (l *AttemptLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.limiters[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.limiters[userID] = u
	}
	u.lastSeen = time.Now()
	return u.limiter.Allow()
}

func (l *AttemptLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			for id, u := range l.limiters {
				if time.Since(u.lastSeen) > 30*time.Minute {
					delete(l.limiters, id)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call multiple times.
func (l *AttemptLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
