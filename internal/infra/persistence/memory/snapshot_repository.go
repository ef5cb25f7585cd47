package memorypersistence

import (
	"context"
	"sync"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository"
)

// SnapshotRepository 在内存中保存每个房间的最新快照。
type SnapshotRepository struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.CanvasSnapshot
}

// NewSnapshotRepository 创建空的内存快照仓库
func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{snapshots: make(map[string]*domain.CanvasSnapshot)}
}

func (r *SnapshotRepository) GetLatestSnapshot(_ context.Context, roomID string) (*domain.CanvasSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snapshots[roomID]
	if !ok {
		return nil, repository.ErrSnapshotNotFound
	}
	return snap.Clone(), nil
}

func (r *SnapshotRepository) SaveSnapshot(_ context.Context, snapshot *domain.CanvasSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.snapshots[snapshot.RoomID]; ok && cur.LastUpdated >= snapshot.LastUpdated {
		return nil
	}
	r.snapshots[snapshot.RoomID] = snapshot.Clone()
	return nil
}

func (r *SnapshotRepository) DeleteSnapshot(_ context.Context, roomID string) error {
	r.mu.Lock()
	delete(r.snapshots, roomID)
	r.mu.Unlock()
	return nil
}

var _ repository.SnapshotRepository = (*SnapshotRepository)(nil)
