package bootstrap

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"retro-paint/internal/infra/setup"
)

// Config 保存从环境变量 (及可选的 .env 文件) 加载的配置
type Config struct {
	AppEnv            string `env:"APP_ENV" envDefault:"development"`
	ServerPort        string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	DBDriver   string `env:"DB_DRIVER" envDefault:"mysql"` // mysql | sqlite | memory
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBHost     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`
	DBName     string `env:"DB_NAME" envDefault:"retro_paint"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"retro-paint.db"`

	RedisAddr     string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix     string `env:"REDIS_KEY_PREFIX" envDefault:"rp:"`

	TicketSecret string        `env:"TICKET_SECRET,notEmpty"`
	TicketExpiry time.Duration `env:"TICKET_EXPIRY" envDefault:"1h"`

	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1s"`

	CanvasWidth      int           `env:"CANVAS_WIDTH" envDefault:"640"`
	CanvasHeight     int           `env:"CANVAS_HEIGHT" envDefault:"480"`
	HistoryLimit     int           `env:"HISTORY_LIMIT" envDefault:"20"`
	SnapshotCacheTTL time.Duration `env:"SNAPSHOT_CACHE_TTL" envDefault:"24h"`
	SendBuffer       int           `env:"SEND_BUFFER" envDefault:"256"`

	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"10"`
	FlushSchedule     string        `env:"FLUSH_SCHEDULE" envDefault:"@every 30s"`
	SweepSchedule     string        `env:"SWEEP_SCHEDULE" envDefault:"@every 5m"`
	RoomIdleTTL       time.Duration `env:"ROOM_IDLE_TTL" envDefault:"30m"`
}

// LoadConfig 加载 .env (如果存在) 后解析环境变量
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 允许只使用环境变量

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", c.LogLevel)
		c.LogLevel = "info"
	}
	switch c.DBDriver {
	case setup.DriverMySQL, setup.DriverSQLite, setup.DriverMemory:
	default:
		return fmt.Errorf("DB_DRIVER must be one of mysql, sqlite, memory (got %q)", c.DBDriver)
	}
	if c.DBDriver == setup.DriverMySQL && c.DBUser == "" {
		return fmt.Errorf("environment variable DB_USER must be set when DB_DRIVER=mysql")
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		return fmt.Errorf("canvas size must be positive (got %dx%d)", c.CanvasWidth, c.CanvasHeight)
	}
	return nil
}

// DB 返回数据库连接参数
func (c *Config) DB() setup.DBConfig {
	return setup.DBConfig{
		Driver:     c.DBDriver,
		User:       c.DBUser,
		Password:   c.DBPassword,
		Host:       c.DBHost,
		Port:       c.DBPort,
		Name:       c.DBName,
		SQLitePath: c.SQLitePath,
		Debug:      c.LogLevel == "debug",
	}
}
