package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"retro-paint/internal/tasks"
)

// Handlers 汇总 worker 注册的任务处理器
type Handlers struct {
	Persist *SnapshotPersistHandler
	Flush   *CanvasFlushHandler
	Sweep   *RoomSweepHandler
}

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server   *asynq.Server
	log      *logrus.Entry
	handlers Handlers
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(redisOpt asynq.RedisClientOpt, handlers Handlers, concurrency int, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")
	if concurrency <= 0 {
		concurrency = 10
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskLogger(ctx, task).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{
		server:   server,
		log:      logEntry,
		handlers: handlers,
	}
}

// Mux 构造注册了全部任务处理器的 ServeMux
func (ws *WorkerServer) Mux() *asynq.ServeMux {
	return NewServeMux(ws.handlers)
}

// NewServeMux 按任务类型注册处理器，nil 的处理器会被跳过
func NewServeMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	if h.Persist != nil {
		mux.HandleFunc(tasks.TypeSnapshotPersist, h.Persist.ProcessTask)
	}
	if h.Flush != nil {
		mux.HandleFunc(tasks.TypeCanvasFlush, h.Flush.ProcessTask)
	}
	if h.Sweep != nil {
		mux.HandleFunc(tasks.TypeRoomSweep, h.Sweep.ProcessTask)
	}
	return mux
}

// Start 在后台启动 Worker Server，立即返回。
// 不使用 asynq.Server.Run，信号处理由调用方负责。
func (ws *WorkerServer) Start() error {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Start(ws.Mux()); err != nil {
		return fmt.Errorf("start worker server: %w", err)
	}
	return nil
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
