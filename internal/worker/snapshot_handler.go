package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// flushTimeout 限制单次周期落盘的总耗时
const flushTimeout = 30 * time.Second

// CanvasFlushHandler 处理周期性的画布落盘任务
type CanvasFlushHandler struct {
	store CanvasPersister
}

// NewCanvasFlushHandler 创建 Handler 实例
func NewCanvasFlushHandler(store CanvasPersister) *CanvasFlushHandler {
	if store == nil {
		panic("CanvasPersister cannot be nil for CanvasFlushHandler")
	}
	return &CanvasFlushHandler{store: store}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *CanvasFlushHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	n, err := h.store.FlushDirty(flushCtx)
	if err != nil {
		// 失败的房间保持脏标记，下一个周期会再试
		logCtx.WithError(err).WithField("rooms", n).Error("Periodic canvas flush finished with errors")
		return fmt.Errorf("flush dirty canvases: %w", err)
	}
	if n > 0 {
		logCtx.WithField("rooms", n).Debug("Periodic canvas flush completed")
	}
	return nil
}
