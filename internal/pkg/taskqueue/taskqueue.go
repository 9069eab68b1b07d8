// Package taskqueue is a small Redis-backed job queue. Ready jobs sit in a
// list, retries wait in a sorted set scored by their due time, and every job
// keeps a JSON record so its status can be inspected.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	redisc "github.com/futureofwork/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is a unit of background work stored in Redis.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Handler runs one task. Returning an error schedules a retry.
type Handler func(ctx context.Context, payload json.RawMessage) error

const (
	keyPrefix  = "fow:task:"
	keyReady   = "fow:tasks:ready"
	keyDelayed = "fow:tasks:delayed"
	taskTTL    = 7 * 24 * time.Hour
)

var ErrUnknownType = errors.New("no handler registered for task type")

// promoteScript moves every delayed task whose due time has passed onto the
// ready list.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

type Options struct {
	MaxRetries   int
	BaseBackoff  time.Duration
	PollInterval time.Duration
	Now          func() time.Time
	// Observe, when set, is called with the task type and one of
	// "completed", "retried" or "failed".
	Observe func(taskType, outcome string)
}

func (o *Options) withDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 5 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Observe == nil {
		o.Observe = func(string, string) {}
	}
}

// Service manages the queue and dispatches tasks to registered handlers.
type Service struct {
	rc   *redisc.Client
	log  *zap.Logger
	opts Options

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewService(rc *redisc.Client, log *zap.Logger, opts Options) *Service {
	opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		rc:       rc,
		log:      log,
		opts:     opts,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a task type.
func (s *Service) Register(taskType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = h
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Enqueue stores a new task and makes it ready immediately.
func (s *Service) Enqueue(ctx context.Context, taskType string, payload interface{}) (*Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now().UTC()
	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   payloadBytes,
		Status:    TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.LPush(ctx, keyReady, task.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return task, nil
}

// GetByID retrieves a task by its ID. A missing task yields (nil, nil).
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var task Task
	return &task, json.Unmarshal(data, &task)
}

func (s *Service) save(ctx context.Context, task *Task) error {
	task.UpdatedAt = s.opts.Now().UTC()
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.rc.Raw().Set(ctx, s.taskKey(task.ID), data, taskTTL).Err()
}

// Backoff returns the wait before retry number attempt (1-based).
func (s *Service) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.opts.BaseBackoff * time.Duration(1<<uint(attempt-1))
}

// RunOnce promotes due retries and processes at most one ready task. It
// reports whether a task was taken.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	now := strconv.FormatInt(s.opts.Now().UnixMilli(), 10)
	if err := promoteScript.Run(ctx, s.rc.Raw(), []string{keyDelayed, keyReady}, now).Err(); err != nil && err != redis.Nil {
		return false, fmt.Errorf("promote delayed tasks: %w", err)
	}

	id, err := s.rc.Raw().RPop(ctx, keyReady).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	task, err := s.GetByID(ctx, id)
	if err != nil {
		return true, err
	}
	if task == nil {
		s.log.Warn("task record expired before processing", zap.String("id", id))
		return true, nil
	}
	return true, s.process(ctx, task)
}

func (s *Service) process(ctx context.Context, task *Task) error {
	s.mu.RLock()
	h, ok := s.handlers[task.Type]
	s.mu.RUnlock()

	task.Attempts++
	task.Status = TaskRunning
	if err := s.save(ctx, task); err != nil {
		return err
	}

	var runErr error
	if !ok {
		runErr = ErrUnknownType
	} else {
		runErr = safeRun(ctx, h, task.Payload)
	}

	if runErr == nil {
		task.Status = TaskCompleted
		task.Error = ""
		s.opts.Observe(task.Type, "completed")
		return s.save(ctx, task)
	}

	task.Error = runErr.Error()
	if !ok || task.Attempts > s.opts.MaxRetries {
		task.Status = TaskFailed
		s.opts.Observe(task.Type, "failed")
		s.log.Error("task dropped after retries",
			zap.String("id", task.ID),
			zap.String("type", task.Type),
			zap.Int("attempts", task.Attempts),
			zap.Error(runErr),
		)
		return s.save(ctx, task)
	}

	task.Status = TaskPending
	s.opts.Observe(task.Type, "retried")
	due := s.opts.Now().Add(s.Backoff(task.Attempts))
	s.log.Warn("task failed, retrying",
		zap.String("id", task.ID),
		zap.String("type", task.Type),
		zap.Int("attempt", task.Attempts),
		zap.Time("retry_at", due),
		zap.Error(runErr),
	)
	if err := s.save(ctx, task); err != nil {
		return err
	}
	return s.rc.Raw().ZAdd(ctx, keyDelayed, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: task.ID,
	}).Err()
}

func safeRun(ctx context.Context, h Handler, payload json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}

// Run processes tasks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("task worker started")
	for {
		took, err := s.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.log.Error("task worker error", zap.Error(err))
		}
		if took {
			continue
		}
		select {
		case <-ctx.Done():
			s.log.Info("task worker stopped")
			return
		case <-time.After(s.opts.PollInterval):
		}
	}
}
