package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/futureofwork/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotenceHeader = "Idempotency-Key"
	idempotenceTTL    = 60 * time.Second
)

// Idempotence rejects a repeated write carrying the same Idempotency-Key from
// the same caller while the first is in flight or within a minute of its
// success. Requests without the header pass through.
func Idempotence(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotenceHeader)
		if c.Request.Method == http.MethodGet || key == "" || len(key) > 128 {
			c.Next()
			return
		}

		owner := CurrentUserID(c)
		if owner == "" {
			owner = c.ClientIP()
		}
		redisKey := "fow:idempotence:" + owner + ":" + c.Request.Method + ":" + c.FullPath() + ":" + key
		ctx := c.Request.Context()

		ok, err := rdb.SetNX(ctx, redisKey, "0", idempotenceTTL).Result()
		if err != nil {
			c.Next()
			return
		}
		if !ok {
			msg := "This request was already completed."
			if val, err := rdb.Get(ctx, redisKey).Result(); errors.Is(err, redis.Nil) || val == "0" {
				msg = "An identical request is still being processed."
			}
			response.Conflict(c, msg)
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			rdb.Set(ctx, redisKey, "1", redis.KeepTTL)
		} else {
			rdb.Del(ctx, redisKey)
		}
	}
}
