package repository

import (
	"context"

	"retro-paint/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间，不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id string) (*domain.Room, error)

	// Create 保存新房间。ID 冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, room *domain.Room) error

	// List 返回所有房间，按创建时间倒序。
	List(ctx context.Context) ([]domain.Room, error)

	// Delete 删除房间，房间不存在时不报错。
	Delete(ctx context.Context, id string) error
}
