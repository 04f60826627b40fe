package agent

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ReplyLimiter keeps one token bucket per conversation.
type ReplyLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	ttl      time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewReplyLimiter allows perSecond replies per conversation with the given burst.
// perSecond <= 0 disables limiting.
func NewReplyLimiter(perSecond float64, burst int) *ReplyLimiter {
	if burst < 1 {
		burst = 1
	}
	l := rate.Inf
	if perSecond > 0 {
		l = rate.Limit(perSecond)
	}
	return &ReplyLimiter{
		limit:    l,
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

func (l *ReplyLimiter) Allow(conversationID string) bool {
	if l == nil || l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[conversationID]
	if !ok {
		l.evictLocked(now)
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[conversationID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *ReplyLimiter) evictLocked(now time.Time) {
	for id, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.limiters, id)
		}
	}
}
