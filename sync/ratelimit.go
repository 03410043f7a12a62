package sync

import (
	"os"
	"strconv"
	gosync "sync"
	"time"

	"golang.org/x/time/rate"
)

// Default throttle applied per API key.
const (
	DefaultThrottleRate    = 40
	DefaultThrottleRatePer = 1000 * time.Millisecond
)

// LimiterRegistry hands out one token bucket per API key, so every client built
// with the same key shares admission.
type LimiterRegistry struct {
	mu       gosync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewLimiterRegistry allows requests calls per interval for each key.
func NewLimiterRegistry(requests int, per time.Duration) *LimiterRegistry {
	if requests <= 0 {
		requests = DefaultThrottleRate
	}
	if per <= 0 {
		per = DefaultThrottleRatePer
	}
	return &LimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(requests) / per.Seconds()),
		burst:    requests,
	}
}

// DefaultLimiterRegistry is used by clients built without WithLimiterRegistry,
// so clients in one process that share a key also share its bucket.
var DefaultLimiterRegistry = NewLimiterRegistryFromEnv()

// NewLimiterRegistryFromEnv reads THROTTLE_RATE and THROTTLE_RATE_PER (milliseconds),
// falling back to the defaults for missing or invalid values.
func NewLimiterRegistryFromEnv() *LimiterRegistry {
	requests := DefaultThrottleRate
	per := DefaultThrottleRatePer
	if v, err := strconv.Atoi(os.Getenv("THROTTLE_RATE")); err == nil && v > 0 {
		requests = v
	}
	if v, err := strconv.Atoi(os.Getenv("THROTTLE_RATE_PER")); err == nil && v > 0 {
		per = time.Duration(v) * time.Millisecond
	}
	return NewLimiterRegistry(requests, per)
}

// Limiter returns the limiter for key, creating it on first use.
func (r *LimiterRegistry) Limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(r.limit, r.burst)
	r.limiters[key] = l
	return l
}

// Len returns the number of keys with a limiter.
func (r *LimiterRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
