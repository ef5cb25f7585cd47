package worker

import (
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"retro-paint/internal/tasks"
)

// Schedule 描述周期任务的 cron 表达式
type Schedule struct {
	Flush string // 例如 "@every 30s"，为空时不注册
	Sweep string // 例如 "@every 5m"，为空时不注册
}

// Scheduler 包装 asynq.Scheduler，注册画布落盘和房间清理两个周期任务
type Scheduler struct {
	scheduler *asynq.Scheduler
	log       *logrus.Entry
}

// NewScheduler 创建调度器并注册周期任务
func NewScheduler(redisOpt asynq.RedisClientOpt, schedule Schedule, logger *logrus.Logger) (*Scheduler, error) {
	s := &Scheduler{
		scheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{}),
		log:       logger.WithField("component", "scheduler"),
	}

	register := func(spec, taskType string) error {
		if spec == "" {
			return nil
		}
		// 周期任务不带 payload，重试交给下一个周期
		entryID, err := s.scheduler.Register(spec, asynq.NewTask(taskType, nil), asynq.Queue("low"), asynq.MaxRetry(0))
		if err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{"task_type": taskType, "entry_id": entryID}).Infof("Periodic task registered with schedule '%s'", spec)
		return nil
	}
	if err := register(schedule.Flush, tasks.TypeCanvasFlush); err != nil {
		return nil, err
	}
	if err := register(schedule.Sweep, tasks.TypeRoomSweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start 在后台启动调度器，立即返回
func (s *Scheduler) Start() error {
	if err := s.scheduler.Start(); err != nil {
		return err
	}
	s.log.Info("Asynq scheduler started")
	return nil
}

// Shutdown 停止调度器
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
	s.log.Info("Asynq scheduler stopped.")
}
