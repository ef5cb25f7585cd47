package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 实现根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %s: %w", id, err)
	}
	return &room, nil
}

// Create 插入新房间，不会覆盖已有记录
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Create(room).Error
	if err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (id: %s, name: %s): %w", room.ID, room.Name, err)
	}
	return nil
}

// List 按创建时间倒序返回所有房间
func (r *GormRoomRepository) List(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("gorm: list rooms: %w", err)
	}
	return rooms, nil
}

// Delete 删除房间
func (r *GormRoomRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Room{}).Error; err != nil {
		return fmt.Errorf("gorm: delete room %s: %w", id, err)
	}
	return nil
}

// isDuplicateEntry 识别唯一约束冲突。MySQL 返回 1062；其他驱动依赖 TranslateError，
// 旧版 sqlite 驱动不翻译主键冲突，只能看错误文本。
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ repository.RoomRepository = (*GormRoomRepository)(nil)
