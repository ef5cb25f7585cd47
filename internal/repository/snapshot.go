package repository

import (
	"context"

	"retro-paint/internal/domain"
)

// SnapshotRepository 持久化每个房间最新的一份画布快照。
type SnapshotRepository interface {
	// GetLatestSnapshot 返回房间的最新快照，没有时返回 ErrSnapshotNotFound。
	GetLatestSnapshot(ctx context.Context, roomID string) (*domain.CanvasSnapshot, error)

	// SaveSnapshot 覆盖写入房间的快照 (upsert)。
	SaveSnapshot(ctx context.Context, snapshot *domain.CanvasSnapshot) error

	// DeleteSnapshot 删除房间的快照。
	DeleteSnapshot(ctx context.Context, roomID string) error
}
