package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository"
)

// GormSnapshotRepository 是 SnapshotRepository 接口的 GORM 实现。
// 每个房间只保留一行，即最新的快照。
type GormSnapshotRepository struct {
	db *gorm.DB
}

// NewGormSnapshotRepository 创建 GormSnapshotRepository 实例
func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSnapshotRepository")
	}
	return &GormSnapshotRepository{db: db}
}

// GetLatestSnapshot 获取指定房间的快照
func (r *GormSnapshotRepository) GetLatestSnapshot(ctx context.Context, roomID string) (*domain.CanvasSnapshot, error) {
	var snapshot domain.CanvasSnapshot
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("gorm: failed to get snapshot for room %s: %w", roomID, err)
	}
	return &snapshot, nil
}

// SaveSnapshot 以 upsert 方式写入快照。较旧的 LastUpdated 不会覆盖较新的记录。
func (r *GormSnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *domain.CanvasSnapshot) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.CanvasSnapshot
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("room_id", "last_updated").
			Where("room_id = ?", snapshot.RoomID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(snapshot).Error
		case err != nil:
			return err
		case existing.LastUpdated >= snapshot.LastUpdated:
			return nil
		}
		return tx.Save(snapshot).Error
	})
	if err != nil {
		return fmt.Errorf("gorm: failed to save snapshot (room %s, lastUpdated %d): %w", snapshot.RoomID, snapshot.LastUpdated, err)
	}
	return nil
}

// DeleteSnapshot 删除房间的快照
func (r *GormSnapshotRepository) DeleteSnapshot(ctx context.Context, roomID string) error {
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&domain.CanvasSnapshot{}).Error; err != nil {
		return fmt.Errorf("gorm: failed to delete snapshot for room %s: %w", roomID, err)
	}
	return nil
}

var _ repository.SnapshotRepository = (*GormSnapshotRepository)(nil)
