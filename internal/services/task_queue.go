package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/debatehub/backend/internal/config"
	"github.com/debatehub/backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeModerate = "moderation:analyze"

	moderationQueue = "moderation"
)

// SubmissionTask is a piece of content waiting for analysis.
type SubmissionTask struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentRef  string `json:"content_ref,omitempty"`
	SubmitterID string `json:"submitter_id,omitempty"`
}

// TaskProcessor handles one submission task.
type TaskProcessor func(context.Context, *SubmissionTask) error

// TaskQueue accepts submissions for background analysis.
type TaskQueue interface {
	// Enqueue schedules the task and returns its id.
	Enqueue(ctx context.Context, task *SubmissionTask) (string, error)
	// IsAsync returns true if tasks survive a restart (Redis backed).
	IsAsync() bool
	Close() error
}

// NewTaskQueue returns a Redis-backed queue when enabled and reachable,
// otherwise an in-process one.
func NewTaskQueue(cfg *config.RedisConfig) TaskQueue {
	if cfg.Enabled {
		queue, err := NewAsyncQueue(cfg)
		if err != nil {
			logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
			return NewSyncQueue()
		}
		logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Addr)
		return queue
	}
	logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
	return NewSyncQueue()
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	// Verify the connection before committing to async mode.
	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func newModerationTask(task *SubmissionTask) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeModerate, payload,
		asynq.Queue(moderationQueue),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	), nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, task *SubmissionTask) (string, error) {
	t, err := newModerationTask(task)
	if err != nil {
		return "", err
	}

	info, err := q.client.EnqueueContext(ctx, t)
	if err != nil {
		return "", err
	}

	logger.Infof("[AsyncQueue] Task enqueued: id=%s, queue=%s", info.ID, info.Queue)
	return info.ID, nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue processes tasks in a goroutine of this process (no Redis).
type SyncQueue struct {
	processor TaskProcessor
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor TaskProcessor) {
	q.processor = processor
}

// Enqueue starts processing without blocking the caller's response.
func (q *SyncQueue) Enqueue(ctx context.Context, task *SubmissionTask) (string, error) {
	id := uuid.New().String()
	if q.processor == nil {
		logger.Warnf("[SyncQueue] No processor set, task %s will be dropped", id)
		return id, nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()
		if err := q.processor(ctx, task); err != nil {
			logger.Error().Err(err).Str("task_id", id).Msg("[SyncQueue] Task processing failed")
		}
	}()

	return id, nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
