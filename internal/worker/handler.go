package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"retro-paint/internal/tasks"
)

// CanvasPersister 是 worker 需要的画布持久化能力，由 service.CanvasStore 实现。
type CanvasPersister interface {
	Persist(ctx context.Context, roomID string) error
	FlushDirty(ctx context.Context) (int, error)
}

// taskLogger 构造带任务元数据的日志上下文
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	queue, _ := asynq.GetQueueName(ctx)
	retry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     retry,
		"max_retry": maxRetry,
	})
}

// SnapshotPersistHandler 处理单个房间的快照持久化任务
type SnapshotPersistHandler struct {
	store CanvasPersister
}

// NewSnapshotPersistHandler 创建 Handler 实例
func NewSnapshotPersistHandler(store CanvasPersister) *SnapshotPersistHandler {
	if store == nil {
		panic("CanvasPersister cannot be nil for SnapshotPersistHandler")
	}
	return &SnapshotPersistHandler{store: store}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *SnapshotPersistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	payload, err := tasks.ParseSnapshotPersistPayload(t.Payload())
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		// payload 坏了重试也没用
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("room_id", payload.RoomID)

	if err := h.store.Persist(ctx, payload.RoomID); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logCtx.WithError(err).Warn("Snapshot persistence interrupted")
		} else {
			logCtx.WithError(err).Error("Failed to persist snapshot")
		}
		return fmt.Errorf("persist room %s: %w", payload.RoomID, err)
	}

	logCtx.Debug("Snapshot persistence task processed")
	return nil
}
