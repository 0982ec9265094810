package config

import "time"

// RateLimitConfig drives both the Redis token bucket and the in-process
// fallback limiter.  A bucket holds at most Burst tokens and refills at
// Rate tokens per second; buckets idle for longer than Idle are forgotten.
type RateLimitConfig struct {
    Enabled bool
    Burst   int
    Rate    float64
    Idle    time.Duration
    Prefix  string
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  Burst and Rate are
// clamped to sane minimums and Idle always covers a full refill.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled: envBool("RATE_LIMIT_ENABLED", true),
        Burst:   envInt("RATE_LIMIT_BURST", 60),
        Rate:    envFloat("RATE_LIMIT_RPS", 1),
        Idle:    envDur("RATE_LIMIT_IDLE", 10*time.Minute),
        Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
    }
    if cfg.Burst < 1 {
        cfg.Burst = 1
    }
    if cfg.Rate <= 0 {
        cfg.Rate = 1
    }
    if full := time.Duration(float64(cfg.Burst) / cfg.Rate * float64(time.Second)); cfg.Idle < full {
        cfg.Idle = full
    }
    return cfg
}
