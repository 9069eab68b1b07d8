package middleware

import (
	"context"
	"fmt"

	"github.com/futureofwork/core/internal/pkg/clientip"
	"github.com/futureofwork/core/internal/pkg/ratelimit"
	"github.com/futureofwork/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateAllower is satisfied by *ratelimit.Limiter.
type RateAllower interface {
	Allow(ctx context.Context, key string, rate ratelimit.Rate) (ratelimit.Result, error)
}

// Throttles resolves named scopes to per-client rate limits.
type Throttles struct {
	limiter RateAllower
	rates   map[string]ratelimit.Rate
	log     *zap.Logger
}

// NewThrottles parses scope rates such as "10/minute".
func NewThrottles(limiter RateAllower, rates map[string]string, log *zap.Logger) (*Throttles, error) {
	parsed := make(map[string]ratelimit.Rate, len(rates))
	for scope, raw := range rates {
		r, err := ratelimit.ParseRate(raw)
		if err != nil {
			return nil, fmt.Errorf("throttle %q: %w", scope, err)
		}
		parsed[scope] = r
	}
	return &Throttles{limiter: limiter, rates: parsed, log: log}, nil
}

// Scope limits a route by the caller's user id, or by IP for anonymous
// callers. Unknown scopes and limiter failures let the request through.
func (t *Throttles) Scope(scope string) gin.HandlerFunc {
	rate, ok := t.rates[scope]
	if !ok {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		who := "ip:" + clientip.FromRequest(c.Request)
		if uid := CurrentUserID(c); uid != "" {
			who = "user:" + uid
		}
		res, err := t.limiter.Allow(c.Request.Context(), "throttle:"+scope+":"+who, rate)
		if err != nil {
			t.log.Warn("throttle check failed", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			secs := int(res.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			response.TooManyRequests(c, secs, "Request was throttled.")
			return
		}
		c.Next()
	}
}
