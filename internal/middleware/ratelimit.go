package middleware

import (
    "math"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/shareables/internal/config"
)

// takeToken refills the bucket continuously at ARGV[3] tokens per
// millisecond, capped at ARGV[2], then tries to take one token.
// Returns {allowed, tokens left, wait ms}.
var takeToken = redis.NewScript(`
local now, burst, per_ms, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4])
local b = redis.call('HMGET', KEYS[1], 'tokens', 'at')
local tokens = tonumber(b[1]) or burst
local at = tonumber(b[2]) or now
tokens = math.min(burst, tokens + math.max(0, now - at) * per_ms)
local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) / per_ms)
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'at', now)
redis.call('EXPIRE', KEYS[1], ttl)
if wait == 0 then return {1, math.floor(tokens), 0} end
return {0, math.floor(tokens), wait}
`)

// NewTokenBucket limits requests per rate key (see rateKey).  With Redis the
// bucket is shared by every instance; without it, or while Redis errors, an
// in-process limiter with the same burst and rate takes over.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    local := NewLocalLimiter(cfg)
    if rdb == nil {
        return local.Middleware()
    }
    idle := int64(math.Ceil(cfg.Idle.Seconds()))

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        fallback := local.Middleware()(next)
        return func(c echo.Context) error {
            key := rateKey(cfg, c)
            res, err := takeToken.Run(c.Request().Context(), rdb, []string{key},
                time.Now().UnixMilli(), cfg.Burst, cfg.Rate/1000, idle).Int64Slice()
            if err != nil || len(res) != 3 {
                c.Logger().Warnf("ratelimit: redis unavailable for %s, using local bucket: %v", key, err)
                return fallback(c)
            }
            setLimitHeaders(c, cfg.Burst, res[1])
            if res[0] != 1 {
                return tooManyRequests(c, int(math.Ceil(float64(res[2])/1000)))
            }
            return next(c)
        }
    }
}

func setLimitHeaders(c echo.Context, burst int, left int64) {
    h := c.Response().Header()
    h.Set("X-RateLimit-Limit", strconv.Itoa(burst))
    h.Set("X-RateLimit-Remaining", strconv.FormatInt(left, 10))
}

func tooManyRequests(c echo.Context, retrySecs int) error {
    if retrySecs < 1 {
        retrySecs = 1
    }
    c.Response().Header().Set("Retry-After", strconv.Itoa(retrySecs))
    return c.JSON(http.StatusTooManyRequests, echo.Map{
        "error":       "rate limit exceeded",
        "retry_after": retrySecs,
    })
}

// rateKey buckets authenticated callers by user id and anonymous callers
// by client IP.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
    if uid := userKey(c); uid != "" {
        return cfg.Prefix + ":user:" + uid
    }
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    return cfg.Prefix + ":ip:" + ip
}
