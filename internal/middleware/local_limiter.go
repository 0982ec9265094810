package middleware

import (
    "math"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "golang.org/x/time/rate"

    "github.com/iliyamo/shareables/internal/config"
)

type localClient struct {
    lim  *rate.Limiter
    seen time.Time
}

// LocalLimiter keeps one token bucket per rate key in memory.  Buckets not
// used for cfg.Idle are dropped lazily on access.
type LocalLimiter struct {
    cfg     config.RateLimitConfig
    mu      sync.Mutex
    clients map[string]*localClient
    now     func() time.Time
    sweep   time.Time
}

func NewLocalLimiter(cfg config.RateLimitConfig) *LocalLimiter {
    return &LocalLimiter{cfg: cfg, clients: make(map[string]*localClient), now: time.Now}
}

func (l *LocalLimiter) get(key string) *rate.Limiter {
    l.mu.Lock()
    defer l.mu.Unlock()
    now := l.now()
    if now.Sub(l.sweep) > l.cfg.Idle {
        for k, c := range l.clients {
            if now.Sub(c.seen) > l.cfg.Idle {
                delete(l.clients, k)
            }
        }
        l.sweep = now
    }
    if c, ok := l.clients[key]; ok {
        c.seen = now
        return c.lim
    }
    lim := rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)
    l.clients[key] = &localClient{lim: lim, seen: now}
    return lim
}

// Middleware rejects requests once the caller's bucket is empty.
func (l *LocalLimiter) Middleware() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            lim := l.get(rateKey(l.cfg, c))
            now := l.now()
            r := lim.ReserveN(now, 1)
            if delay := r.DelayFrom(now); delay > 0 {
                r.CancelAt(now)
                return tooManyRequests(c, int(math.Ceil(delay.Seconds())))
            }
            setLimitHeaders(c, l.cfg.Burst, int64(lim.TokensAt(now)))
            return next(c)
        }
    }
}
