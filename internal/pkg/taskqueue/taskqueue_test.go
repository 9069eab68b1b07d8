package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisc "github.com/futureofwork/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(t *testing.T) (*Service, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewService(redisc.Wrap(rdb), nil, Options{Now: c.now}), c
}

func TestEnqueueAndProcess(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	var got map[string]string
	s.Register("greet", func(_ context.Context, p json.RawMessage) error {
		return json.Unmarshal(p, &got)
	})

	task, err := s.Enqueue(ctx, "greet", map[string]string{"to": "a@b.c"})
	require.NoError(t, err)

	took, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, took)
	assert.Equal(t, "a@b.c", got["to"])

	stored, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, stored.Status)
	assert.Equal(t, 1, stored.Attempts)

	took, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, took)
}

func TestRetryWithBackoffThenDrop(t *testing.T) {
	s, c := newService(t)
	ctx := context.Background()

	calls := 0
	s.Register("flaky", func(context.Context, json.RawMessage) error {
		calls++
		return errors.New("smtp down")
	})

	task, err := s.Enqueue(ctx, "flaky", nil)
	require.NoError(t, err)

	_, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Not yet due.
	took, _ := s.RunOnce(ctx)
	assert.False(t, took)

	for attempt := 1; attempt <= 3; attempt++ {
		c.t = c.t.Add(s.Backoff(attempt))
		took, err = s.RunOnce(ctx)
		require.NoError(t, err)
		assert.True(t, took)
	}
	assert.Equal(t, 4, calls)

	stored, _ := s.GetByID(ctx, task.ID)
	assert.Equal(t, TaskFailed, stored.Status)
	assert.Equal(t, "smtp down", stored.Error)

	c.t = c.t.Add(time.Hour)
	took, _ = s.RunOnce(ctx)
	assert.False(t, took)
}

func TestUnknownTypeFailsImmediately(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	task, err := s.Enqueue(ctx, "nobody", nil)
	require.NoError(t, err)
	_, err = s.RunOnce(ctx)
	require.NoError(t, err)

	stored, _ := s.GetByID(ctx, task.ID)
	assert.Equal(t, TaskFailed, stored.Status)
}

func TestBackoffDoubles(t *testing.T) {
	s, _ := newService(t)
	assert.Equal(t, 5*time.Second, s.Backoff(1))
	assert.Equal(t, 10*time.Second, s.Backoff(2))
	assert.Equal(t, 20*time.Second, s.Backoff(3))
}
