package repository

import (
	"context"
	"time"

	"retro-paint/internal/domain"
)

// StateRepository 定义了与房间实时状态相关的缓存操作，由 Redis 实现。
type StateRepository interface {
	// === Snapshot Caching ===

	// GetSnapshotCache 尝试从缓存中获取快照，未命中时返回 ErrCacheMiss。
	GetSnapshotCache(ctx context.Context, roomID string) (*domain.CanvasSnapshot, error)

	// SetSnapshotCache 将快照存入缓存。ttl 为 0 表示不过期。
	SetSnapshotCache(ctx context.Context, snapshot *domain.CanvasSnapshot, ttl time.Duration) error

	// DeleteSnapshotCache 删除房间的快照缓存。
	DeleteSnapshotCache(ctx context.Context, roomID string) error

	// === Room Activity ===

	// TouchRoom 记录房间最近一次活动的时间。
	TouchRoom(ctx context.Context, roomID string, at time.Time) error

	// LastActivity 返回房间最近一次活动时间，没有记录时返回零值和 nil。
	LastActivity(ctx context.Context, roomID string) (time.Time, error)

	// CleanupRoomState 清理房间相关的所有 key。
	CleanupRoomState(ctx context.Context, roomID string) error

	// === Rate Limiting ===

	// CheckRateLimit 递增给定 key 的计数，超过 limit 时返回 true。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
