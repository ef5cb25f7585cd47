package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// 支持的数据库驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMemory = "memory" // 不使用数据库，仓储层退化为进程内实现
)

// DBConfig 描述数据库连接参数
type DBConfig struct {
	Driver     string
	User       string
	Password   string
	Host       string
	Port       string
	Name       string
	SQLitePath string
	Debug      bool
}

// DSN 构建 MySQL 连接字符串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// InitDB 按驱动打开数据库连接。DriverMemory 返回 (nil, nil)。
func InitDB(cfg DBConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true, // 让唯一约束冲突变成 gorm.ErrDuplicatedKey
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
	if cfg.Debug {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverMemory:
		logrus.Warn("DB_DRIVER=memory: rooms and snapshots will not survive a restart")
		return nil, nil
	case DriverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = "retro-paint.db"
		}
		dialector = sqlite.Open(path)
	case DriverMySQL, "":
		if cfg.User == "" {
			return nil, fmt.Errorf("DB_USER must be set for mysql driver")
		}
		dialector = mysql.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if dialector.Name() == DriverSQLite {
		// sqlite 只允许一个写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	logrus.WithField("driver", dialector.Name()).Info("Database connected")
	return db, nil
}

// InitRedis 创建 Redis 客户端并检查连通性
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	logrus.WithField("addr", addr).Info("Redis connected")
	return client, nil
}
