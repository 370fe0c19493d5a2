package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/gso-inventory-auth/internal/config"
)

// classMessages is the human text returned with a 429 per class.
var classMessages = map[string]string{
	config.ClassLogin:    "Too many login attempts, please try again later.",
	config.ClassReset:    "Too many password reset requests, please try again later.",
	config.ClassRegister: "Too many accounts created from this IP, please try again later.",
	config.ClassAPI:      "Too many requests, please try again later.",
	config.ClassView:     "Too many requests, please try again later.",
	config.ClassModify:   "Too many modification requests, please try again later.",
}

// sensitiveClasses get cache and framing protection headers.
var sensitiveClasses = map[string]bool{
	config.ClassLogin:    true,
	config.ClassReset:    true,
	config.ClassRegister: true,
}

// fixedWindowScript increments the counter for the current window and
// starts the window on the first hit.  It returns {count, pttl}.
var fixedWindowScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return { n, ttl }
`)

// Limiter counts requests per class and client in fixed windows.  Counters
// live in Redis when a client is configured, so every instance shares one
// budget; otherwise, and whenever Redis fails, a process-local window is
// used.
type Limiter struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	mem *memoryWindows
	log *zap.SugaredLogger
}

// NewLimiter returns a Limiter.  rdb may be nil.
func NewLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.SugaredLogger) *Limiter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Limiter{cfg: cfg, rdb: rdb, mem: newMemoryWindows(time.Now), log: log}
}

// For returns the middleware enforcing class.  The view class only limits
// anonymous callers.
func (l *Limiter) For(class string) echo.MiddlewareFunc {
	if !l.cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	budget := l.cfg.Budget(class)
	msg := classMessages[class]
	if msg == "" {
		msg = classMessages[config.ClassAPI]
	}
	sensitive := sensitiveClasses[class]

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			_, authed := UserID(c)
			if class == config.ClassView && authed {
				return next(c)
			}
			key := l.key(class, c)
			count := l.hit(c.Request().Context(), key, budget.Window)

			h := c.Response().Header()
			if sensitive {
				h.Set("Cache-Control", "no-store")
				h.Set("X-Content-Type-Options", "nosniff")
				h.Set("X-Frame-Options", "DENY")
				h.Set("Referrer-Policy", "no-referrer")
			}
			remaining := int64(budget.Limit) - count
			if remaining < 0 {
				remaining = 0
			}
			h.Set("X-RateLimit-Limit", strconv.Itoa(budget.Limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if l.cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}

			if count > int64(budget.Limit) {
				if l.cfg.Debug {
					l.log.Infow("rate limit block", "key", key, "count", count, "limit", budget.Limit)
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":   "too_many_requests",
					"message": msg,
				})
			}
			return next(c)
		}
	}
}

// key builds <prefix>:<class>:user:<id> for authenticated requests and
// <prefix>:<class>:ip:<addr> otherwise.
func (l *Limiter) key(class string, c echo.Context) string {
	if uid, ok := UserID(c); ok {
		return l.cfg.Prefix + ":" + class + ":user:" + strconv.FormatUint(uid, 10)
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return l.cfg.Prefix + ":" + class + ":ip:" + ip
}

// hit records one request and returns the count within the current window.
func (l *Limiter) hit(ctx context.Context, key string, window time.Duration) int64 {
	if l.rdb != nil {
		vals, err := fixedWindowScript.Run(ctx, l.rdb, []string{key}, window.Milliseconds()).Int64Slice()
		if err == nil && len(vals) == 2 {
			return vals[0]
		}
		l.log.Warnw("rate limit redis error, using memory window", "key", key, "error", err)
	}
	return l.mem.hit(key, window)
}

// memoryWindows is the process-local fixed window store.
type memoryWindows struct {
	mu        sync.Mutex
	windows   map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

type window struct {
	count   int64
	resetAt time.Time
}

// sweepEvery bounds how often expired windows are dropped.
const sweepEvery = time.Minute

func newMemoryWindows(now func() time.Time) *memoryWindows {
	return &memoryWindows{windows: make(map[string]*window), now: now}
}

func (m *memoryWindows) hit(key string, length time.Duration) int64 {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) >= sweepEvery {
		for k, w := range m.windows {
			if !now.Before(w.resetAt) {
				delete(m.windows, k)
			}
		}
		m.lastSweep = now
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(length)}
		m.windows[key] = w
	}
	w.count++
	return w.count
}
