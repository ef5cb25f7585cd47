package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "rp:" // 默认前缀 "rp:" (retro paint)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---
func (r *RedisStateRepository) roomSnapshotCacheKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s:snapshot", r.keyPrefix, roomID)
}

func (r *RedisStateRepository) roomActivityKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s:last_active", r.keyPrefix, roomID)
}

func (r *RedisStateRepository) rateLimitKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", r.keyPrefix, key)
}

// GetSnapshotCache 尝试从 Redis 缓存中获取快照。
func (r *RedisStateRepository) GetSnapshotCache(ctx context.Context, roomID string) (*domain.CanvasSnapshot, error) {
	key := r.roomSnapshotCacheKey(roomID)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis: failed to get snapshot cache for room %s from %s: %w", roomID, key, err)
	}
	var snapshot domain.CanvasSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("redis: failed to unmarshal snapshot cache for room %s from %s: %w", roomID, key, err)
	}
	// RoomID 不参与 JSON 序列化
	snapshot.RoomID = roomID
	return &snapshot, nil
}

// SetSnapshotCache 将快照存入 Redis 缓存。
func (r *RedisStateRepository) SetSnapshotCache(ctx context.Context, snapshot *domain.CanvasSnapshot, ttl time.Duration) error {
	key := r.roomSnapshotCacheKey(snapshot.RoomID)
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal snapshot for cache (room %s, lastUpdated %d): %w", snapshot.RoomID, snapshot.LastUpdated, err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set snapshot cache for room %s on key %s: %w", snapshot.RoomID, key, err)
	}
	return nil
}

// DeleteSnapshotCache 删除房间的快照缓存
func (r *RedisStateRepository) DeleteSnapshotCache(ctx context.Context, roomID string) error {
	key := r.roomSnapshotCacheKey(roomID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete snapshot cache %s: %w", key, err)
	}
	return nil
}

// TouchRoom 记录房间最近一次活动的时间 (unix 毫秒)。
func (r *RedisStateRepository) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	key := r.roomActivityKey(roomID)
	if err := r.client.Set(ctx, key, at.UnixMilli(), 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("redis: failed to touch room %s: %w", roomID, err)
	}
	return nil
}

// LastActivity 返回房间最近一次活动时间
func (r *RedisStateRepository) LastActivity(ctx context.Context, roomID string) (time.Time, error) {
	key := r.roomActivityKey(roomID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("redis: failed to get last activity for room %s: %w", roomID, err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: failed to parse last activity '%s' for room %s: %w", val, roomID, err)
	}
	return time.UnixMilli(ms), nil
}

// CleanupRoomState 清理房间相关的 Redis key
func (r *RedisStateRepository) CleanupRoomState(ctx context.Context, roomID string) error {
	keys := []string{r.roomSnapshotCacheKey(roomID), r.roomActivityKey(roomID)}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: failed to cleanup state for room %s: %w", roomID, err)
	}
	return nil
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.rateLimitKey(key)
	// INCR 和 EXPIRE 放在同一个 Pipeline 中，减少往返
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", fullKey, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", fullKey, err)
	}
	return count > int64(limit), nil
}

var _ repository.StateRepository = (*RedisStateRepository)(nil)
