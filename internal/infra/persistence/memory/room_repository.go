// Package memorypersistence 提供进程内的仓库实现，用于 DB_DRIVER=memory 和测试。
package memorypersistence

import (
	"context"
	"sort"
	"sync"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository"
)

// RoomRepository 是基于并发安全 map 的 RoomRepository 实现。
// 房间创建后不可变，所以只需保护 map 本身。
type RoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]domain.Room
}

// NewRoomRepository 创建空的内存房间仓库
func NewRoomRepository() *RoomRepository {
	return &RoomRepository{rooms: make(map[string]domain.Room)}
}

func (r *RoomRepository) FindByID(_ context.Context, id string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return &room, nil
}

func (r *RoomRepository) Create(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[room.ID]; exists {
		return repository.ErrDuplicateEntry
	}
	r.rooms[room.ID] = *room
	return nil
}

func (r *RoomRepository) List(_ context.Context) ([]domain.Room, error) {
	r.mu.RLock()
	rooms := make([]domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	return rooms, nil
}

func (r *RoomRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.rooms, id)
	r.mu.Unlock()
	return nil
}

var _ repository.RoomRepository = (*RoomRepository)(nil)
