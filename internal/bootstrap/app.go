package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"retro-paint/internal/hub"
	gormpersistence "retro-paint/internal/infra/persistence/gorm"
	memorypersistence "retro-paint/internal/infra/persistence/memory"
	"retro-paint/internal/infra/setup"
	redisstate "retro-paint/internal/infra/state/redis"
	"retro-paint/internal/render"
	"retro-paint/internal/repository"
	"retro-paint/internal/service"
	"retro-paint/internal/tasks"
	"retro-paint/internal/worker"
)

// App 包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB // DB_DRIVER=memory 时为 nil
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Scheduler   *worker.Scheduler
	Canvas      *service.CanvasStore
	Hub         *hub.Hub
	HttpServer  *http.Server
}

// NewLogger 按环境和级别配置 logrus，并同步到全局 logger
func NewLogger(appEnv, level string) *logrus.Logger {
	log := logrus.New()
	if appEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stdout)

	// 各层直接使用 logrus 包级函数，保持格式一致
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stdout)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := NewLogger(cfg.AppEnv, cfg.LogLevel)
	log.Infof("Logger initialized (Level: %s, Env: %s)", log.GetLevel(), cfg.AppEnv)

	// 3. 初始化基础设施
	db, err := setup.InitDB(cfg.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if db != nil {
		if err := setup.MigrateDB(db); err != nil {
			return nil, fmt.Errorf("failed to migrate DB: %w", err)
		}
	}

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Infrastructure initialized")

	// 4. 初始化 Repositories
	var (
		roomRepo     repository.RoomRepository
		snapshotRepo repository.SnapshotRepository
	)
	if db != nil {
		roomRepo = gormpersistence.NewGormRoomRepository(db)
		snapshotRepo = gormpersistence.NewGormSnapshotRepository(db)
	} else {
		roomRepo = memorypersistence.NewRoomRepository()
		snapshotRepo = memorypersistence.NewSnapshotRepository()
	}
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)

	// 5. 初始化 Services
	tickets, err := service.NewTicketService(cfg.TicketSecret, cfg.TicketExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to create TicketService: %w", err)
	}
	roomService := service.NewRoomService(roomRepo, tickets)
	canvasStore := service.NewCanvasStore(render.NewGGRenderer(), snapshotRepo, stateRepo, service.CanvasConfig{
		Width:        cfg.CanvasWidth,
		Height:       cfg.CanvasHeight,
		HistoryLimit: cfg.HistoryLimit,
		CacheTTL:     cfg.SnapshotCacheTTL,
	})

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := roomService.EnsureDefaultRoom(startCtx); err != nil {
		return nil, fmt.Errorf("failed to ensure default room: %w", err)
	}

	// 6. 初始化 Hub
	hubInstance := hub.NewHub(roomService, canvasStore)
	hubInstance.OnRoomEmpty(NewRoomEmptyHook(stateRepo, asynqClient))

	// 7. 初始化 Worker Server 和周期任务
	workerServer := worker.NewWorkerServer(redisClientOpt, worker.Handlers{
		Persist: worker.NewSnapshotPersistHandler(canvasStore),
		Flush:   worker.NewCanvasFlushHandler(canvasStore),
		Sweep:   worker.NewRoomSweepHandler(roomService, hubInstance, canvasStore, stateRepo, cfg.RoomIdleTTL),
	}, cfg.WorkerConcurrency, log)
	scheduler, err := worker.NewScheduler(redisClientOpt, worker.Schedule{
		Flush: cfg.FlushSchedule,
		Sweep: cfg.SweepSchedule,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to register periodic tasks: %w", err)
	}

	// 8. 初始化 Gin 路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := NewRouter(RouterDeps{
		Log:             log,
		Rooms:           roomService,
		Hub:             hubInstance,
		State:           stateRepo,
		AllowedOrigin:   cfg.CORSAllowedOrigin,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		SendBuffer:      cfg.SendBuffer,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("Application assembled successfully")

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Scheduler:   scheduler,
		Canvas:      canvasStore,
		Hub:         hubInstance,
		HttpServer:  httpServer,
	}, nil
}

// TaskEnqueuer 是 asynq.Client 的子集
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewRoomEmptyHook 返回房间变空时的回调：记录活动时间并投递快照持久化任务
func NewRoomEmptyHook(state repository.StateRepository, queue TaskEnqueuer) func(roomID string) {
	return func(roomID string) {
		logCtx := logrus.WithField("room_id", roomID)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := state.TouchRoom(ctx, roomID, time.Now()); err != nil {
			logCtx.WithError(err).Warn("Failed to record room activity")
		}

		payload, err := tasks.NewSnapshotPersistPayload(roomID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to build snapshot persist payload")
			return
		}
		info, err := queue.EnqueueContext(ctx, asynq.NewTask(tasks.TypeSnapshotPersist, payload),
			asynq.Queue("critical"), asynq.MaxRetry(3), asynq.Timeout(30*time.Second))
		if err != nil {
			// 周期 flush 会兜底
			logCtx.WithError(err).Warn("Failed to enqueue snapshot persist task")
			return
		}
		logCtx.WithField("task_id", info.ID).Debug("Snapshot persist task enqueued")
	}
}

// Start 启动 worker、调度器和 HTTP 服务器
func (a *App) Start() error {
	if err := a.AsynqServer.Start(); err != nil {
		return err
	}
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return nil
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// 1. 停止接收新连接
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	// 2. 停止周期任务和 worker
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 3. 把所有脏画布落盘
	if a.Canvas != nil {
		if err := a.Canvas.Close(ctx); err != nil {
			a.Log.Errorf("Error flushing canvases on shutdown: %v", err)
		} else {
			a.Log.Info("Canvas store closed.")
		}
	}

	// 4. 关闭客户端连接
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}
