// Package ratelimit implements fixed-window counters in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redisc "github.com/futureofwork/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// Rate is a number of hits allowed per window.
type Rate struct {
	Limit  int64
	Window time.Duration
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}

var units = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute,
	"h": time.Hour, "hour": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour,
}

// ParseRate parses rates such as "5/hour" or "10/minute".
func ParseRate(s string) (Rate, error) {
	num, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q", s)
	}
	limit, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
	if err != nil || limit < 1 {
		return Rate{}, fmt.Errorf("invalid rate %q", s)
	}
	window, ok := units[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate unit in %q", s)
	}
	return Rate{Limit: limit, Window: window}, nil
}

// allowScript increments the counter only while it is below the limit, so
// rejected calls do not extend or inflate the window.
var allowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return {0, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, redis.call('PTTL', KEYS[1])}
`)

type Limiter struct {
	rc     *redisc.Client
	prefix string
}

func New(rc *redisc.Client, prefix string) *Limiter {
	return &Limiter{rc: rc, prefix: prefix}
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Allow records a hit for key if the rate permits it.
func (l *Limiter) Allow(ctx context.Context, key string, rate Rate) (Result, error) {
	vals, err := allowScript.Run(ctx, l.rc.Raw(), []string{l.prefix + key}, rate.Limit, rate.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	ttl := time.Duration(vals[1]) * time.Millisecond
	if ttl < 0 {
		ttl = rate.Window
	}
	if vals[0] == 1 {
		return Result{Allowed: true}, nil
	}
	return Result{RetryAfter: ttl}, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.rc.Raw().Del(ctx, l.prefix+key).Err()
}
