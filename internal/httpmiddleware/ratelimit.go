package httpmiddleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"classroll/internal/auth"
)

// TokenBucket is an in-memory per-client rate limiter. Authenticated
// requests are keyed by teacher, anonymous ones by client IP.
type TokenBucket struct {
	capacity int
	perMin   int
	now      func() time.Time

	// A bucket untouched for idleAfter has refilled completely and is
	// dropped; Allow recreates it on the next request.
	idleAfter time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates a limiter refilling perMinute tokens up to capacity.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	idle := time.Minute
	if perMinute > 0 {
		idle = time.Duration(capacity/perMinute+1) * time.Minute
	}
	return &TokenBucket{
		capacity:  capacity,
		perMin:    perMinute,
		now:       time.Now,
		idleAfter: idle,
		buckets:   make(map[string]*bucket),
	}
}

// Middleware rejects requests over the limit with 429.
func (l *TokenBucket) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(clientKey(c)) {
			c.Header("Retry-After", strconv.Itoa(l.retryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED", "message": "too many requests"})
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if actor, ok := auth.ActorFrom(c); ok {
		return "teacher:" + strconv.FormatInt(actor.TeacherID, 10)
	}
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "unknown"
}

// Allow takes one token for key.
func (l *TokenBucket) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.capacity - 1, last: now}
		return l.capacity > 0
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.perMin))
	if refill > 0 {
		b.tokens = min(b.tokens+refill, l.capacity)
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep evicts idle buckets at most once per idleAfter. Caller holds mu.
func (l *TokenBucket) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleAfter {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.last) >= l.idleAfter {
			delete(l.buckets, key)
		}
	}
}

func (l *TokenBucket) retryAfter() int {
	if l.perMin <= 0 {
		return 60
	}
	return max(1, 60/l.perMin)
}
