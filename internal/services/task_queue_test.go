package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/debatehub/backend/internal/config"
	"github.com/hibiken/asynq"
)

func TestTaskTypeModerate_Constant(t *testing.T) {
	if TaskTypeModerate != "moderation:analyze" {
		t.Errorf("TaskTypeModerate = %q, expected %q", TaskTypeModerate, "moderation:analyze")
	}
}

func TestNewModerationTask(t *testing.T) {
	task := &SubmissionTask{
		Title:       "Universal basic income",
		Content:     "UBI reduces poverty without reducing work.",
		ContentRef:  "argument-12",
		SubmitterID: "user-7",
	}

	at, err := newModerationTask(task)
	if err != nil {
		t.Fatalf("newModerationTask() error = %v", err)
	}
	if at.Type() != TaskTypeModerate {
		t.Errorf("Type() = %q, expected %q", at.Type(), TaskTypeModerate)
	}

	var decoded SubmissionTask
	if err := json.Unmarshal(at.Payload(), &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded != *task {
		t.Errorf("payload = %+v, expected %+v", decoded, *task)
	}
}

func TestNewTaskQueue_RedisDisabled(t *testing.T) {
	queue := NewTaskQueue(&config.RedisConfig{Enabled: false})
	if queue.IsAsync() {
		t.Error("queue should be sync when Redis is disabled")
	}
	if _, ok := queue.(*SyncQueue); !ok {
		t.Errorf("queue = %T, expected *SyncQueue", queue)
	}
}

func TestSyncQueue_IsAsync(t *testing.T) {
	queue := NewSyncQueue()
	if queue.IsAsync() {
		t.Error("SyncQueue.IsAsync() should return false")
	}
	if err := queue.Close(); err != nil {
		t.Errorf("SyncQueue.Close() should return nil, got %v", err)
	}
}

func TestSyncQueue_EnqueueWithoutProcessor(t *testing.T) {
	queue := NewSyncQueue()

	id, err := queue.Enqueue(context.Background(), &SubmissionTask{Content: "x"})
	if err != nil {
		t.Errorf("Enqueue without processor should not error, got %v", err)
	}
	if id == "" {
		t.Error("Enqueue should return a task id")
	}
}

func TestSyncQueue_EnqueueRunsProcessor(t *testing.T) {
	queue := NewSyncQueue()
	done := make(chan *SubmissionTask, 1)
	queue.SetProcessor(func(ctx context.Context, task *SubmissionTask) error {
		done <- task
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := queue.Enqueue(ctx, &SubmissionTask{ContentRef: "thread-1"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	// The request context ending must not abort background processing.
	cancel()

	select {
	case task := <-done:
		if task.ContentRef != "thread-1" {
			t.Errorf("ContentRef = %q, expected thread-1", task.ContentRef)
		}
	case <-time.After(time.Second):
		t.Fatal("processor was not called")
	}
}

func TestAsyncQueue_IsAsync(t *testing.T) {
	queue := &AsyncQueue{}
	if !queue.IsAsync() {
		t.Error("AsyncQueue.IsAsync() should return true")
	}
}

func TestNewWorker_RedisDisabled(t *testing.T) {
	if w := NewWorker(&config.RedisConfig{Enabled: false}); w != nil {
		t.Error("NewWorker should return nil when Redis is disabled")
	}
}

func TestWorker_HandleModerationTask(t *testing.T) {
	w := &Worker{}
	var got *SubmissionTask
	w.SetProcessor(func(ctx context.Context, task *SubmissionTask) error {
		got = task
		return nil
	})

	at, _ := newModerationTask(&SubmissionTask{Title: "t", Content: "c"})
	if err := w.handleModerationTask(context.Background(), at); err != nil {
		t.Fatalf("handleModerationTask() error = %v", err)
	}
	if got == nil || got.Content != "c" {
		t.Errorf("processor got %+v", got)
	}

	bad := asynq.NewTask(TaskTypeModerate, []byte("{not json"))
	err := w.handleModerationTask(context.Background(), bad)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("malformed payload error = %v, expected SkipRetry", err)
	}
}
