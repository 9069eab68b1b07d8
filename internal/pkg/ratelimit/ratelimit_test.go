package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisc "github.com/futureofwork/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	r, err := ParseRate("5/hour")
	require.NoError(t, err)
	assert.Equal(t, Rate{Limit: 5, Window: time.Hour}, r)

	r, err = ParseRate(" 10 / Minute ")
	require.NoError(t, err)
	assert.Equal(t, Rate{Limit: 10, Window: time.Minute}, r)

	for _, bad := range []string{"", "5", "x/hour", "0/hour", "5/fortnight"} {
		_, err := ParseRate(bad)
		assert.Error(t, err, bad)
	}
}

func TestAllowWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := New(redisc.Wrap(rdb), "test:")
	ctx := context.Background()
	rate := Rate{Limit: 5, Window: time.Hour}

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "k", rate)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i+1)
	}

	res, err := l.Allow(ctx, "k", rate)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, time.Hour.Seconds(), res.RetryAfter.Seconds(), 1)

	got, _ := mr.Get("test:k")
	assert.Equal(t, "5", got)

	mr.FastForward(time.Hour + time.Second)
	res, err = l.Allow(ctx, "k", rate)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "k"))
	assert.False(t, mr.Exists("test:k"))
}
