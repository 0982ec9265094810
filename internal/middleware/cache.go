package middleware

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/shareables/internal/config"
)

// bodyRecorder tees the response body into buf until more than max bytes
// have been written; after that the response is marked too large to cache.
type bodyRecorder struct {
    http.ResponseWriter
    status   int
    buf      bytes.Buffer
    max      int
    tooLarge bool
}

func (w *bodyRecorder) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
    if !w.tooLarge {
        if w.max > 0 && w.buf.Len()+len(b) > w.max {
            w.tooLarge = true
            w.buf.Reset()
        } else {
            w.buf.Write(b)
        }
    }
    return w.ResponseWriter.Write(b)
}

// cachedResponse is what NewRedisCache stores per key.
type cachedResponse struct {
    Status int         `json:"s"`
    Header http.Header `json:"h"`
    Body   []byte      `json:"b"`
}

// cacheKey is the concrete request URI under the configured prefix.  The
// route pattern cannot be used: every /v1/shareables/:uuid would collide.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
    return cfg.Prefix + ":" + c.Request().URL.RequestURI()
}

func encodePayload(r cachedResponse) ([]byte, error) { return json.Marshal(r) }

func decodePayload(bs []byte) (cachedResponse, bool) {
    var r cachedResponse
    if err := json.Unmarshal(bs, &r); err != nil || r.Status == 0 {
        return cachedResponse{}, false
    }
    return r, true
}

// NewRedisCache serves anonymous requests for the configured methods from
// Redis and stores 200 responses for cfg.TTL.  Entries live under
// cfg.Prefix so CachePurger can drop them when shareables or reservations
// change.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 30 * time.Second
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            req := c.Request()
            // per-user responses are never shared
            if !cfg.Methods[req.Method] || req.Header.Get(echo.HeaderAuthorization) != "" {
                return next(c)
            }
            key := cacheKey(cfg, c)

            if bs, err := rdb.Get(req.Context(), key).Bytes(); err == nil {
                if hit, ok := decodePayload(bs); ok {
                    h := c.Response().Header()
                    for k, vals := range hit.Header {
                        if strings.EqualFold(k, echo.HeaderContentLength) {
                            continue
                        }
                        h[k] = vals
                    }
                    h.Set("X-Cache", "HIT")
                    return c.Blob(hit.Status, h.Get(echo.HeaderContentType), hit.Body)
                }
            }

            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, max: cfg.MaxBodyBytes}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if rec.status != http.StatusOK || rec.tooLarge {
                return nil
            }
            payload, err := encodePayload(cachedResponse{
                Status: rec.status,
                Header: c.Response().Header().Clone(),
                Body:   rec.buf.Bytes(),
            })
            if err == nil {
                // the request context may already be cancelled
                _ = rdb.Set(context.Background(), key, payload, ttl).Err()
            }
            return nil
        }
    }
}

// CachePurger drops every cached response under a prefix.  A nil purger is
// a no-op.
type CachePurger struct {
    rdb    *redis.Client
    prefix string
}

// NewCachePurger returns nil when caching is off or Redis is unavailable.
func NewCachePurger(cfg config.CacheConfig, rdb *redis.Client) *CachePurger {
    if !cfg.Enabled || rdb == nil {
        return nil
    }
    return &CachePurger{rdb: rdb, prefix: cfg.Prefix}
}

// Purge deletes every key under the prefix, one SCAN page at a time.
func (p *CachePurger) Purge(ctx context.Context) error {
    if p == nil {
        return nil
    }
    iter := p.rdb.Scan(ctx, 0, p.prefix+":*", 200).Iterator()
    var batch []string
    for iter.Next(ctx) {
        batch = append(batch, iter.Val())
        if len(batch) == 200 {
            if err := p.rdb.Del(ctx, batch...).Err(); err != nil {
                return fmt.Errorf("cache delete: %w", err)
            }
            batch = batch[:0]
        }
    }
    if err := iter.Err(); err != nil {
        return fmt.Errorf("cache scan: %w", err)
    }
    if len(batch) > 0 {
        if err := p.rdb.Del(ctx, batch...).Err(); err != nil {
            return fmt.Errorf("cache delete: %w", err)
        }
    }
    return nil
}
