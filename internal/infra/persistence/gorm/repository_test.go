package gormpersistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "repo.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Room{}, &domain.CanvasSnapshot{}))
	return db
}

func TestGormRoomRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRoomRepository(newTestDB(t))

	older := &domain.Room{ID: "r1", Name: "first", MaxUsers: 4, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &domain.Room{ID: "r2", Name: "second", MaxUsers: 2, IsPrivate: true, PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	got, err := repo.FindByID(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
	assert.True(t, got.IsPrivate)
	assert.Equal(t, "hash", got.PasswordHash)

	rooms, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "r2", rooms[0].ID, "newest first")

	require.NoError(t, repo.Delete(ctx, "r1"))
	_, err = repo.FindByID(ctx, "r1")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)

	// 删除不存在的房间不报错
	assert.NoError(t, repo.Delete(ctx, "missing"))
}

func TestGormRoomRepository_Duplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRoomRepository(newTestDB(t))

	require.NoError(t, repo.Create(ctx, &domain.Room{ID: "dup", Name: "a", MaxUsers: 2}))
	err := repo.Create(ctx, &domain.Room{ID: "dup", Name: "b", MaxUsers: 2})
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)
}

func TestGormSnapshotRepository_SaveKeepsNewest(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSnapshotRepository(newTestDB(t))

	_, err := repo.GetLatestSnapshot(ctx, "room")
	assert.ErrorIs(t, err, repository.ErrSnapshotNotFound)

	first := &domain.CanvasSnapshot{
		RoomID: "room", Width: 4, Height: 4, ImageData: "a",
		History: []string{"blank", "a"}, HistoryIndex: 1, LastUpdated: 100,
	}
	require.NoError(t, repo.SaveSnapshot(ctx, first))

	second := first.Clone()
	second.ImageData = "b"
	second.History = append(second.History, "b")
	second.HistoryIndex = 2
	second.LastUpdated = 200
	require.NoError(t, repo.SaveSnapshot(ctx, second))

	stale := first.Clone()
	stale.ImageData = "stale"
	stale.LastUpdated = 150
	require.NoError(t, repo.SaveSnapshot(ctx, stale))

	got, err := repo.GetLatestSnapshot(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, "b", got.ImageData)
	assert.Equal(t, []string{"blank", "a", "b"}, got.History)
	assert.Equal(t, 2, got.HistoryIndex)
	assert.Equal(t, int64(200), got.LastUpdated)

	require.NoError(t, repo.DeleteSnapshot(ctx, "room"))
	_, err = repo.GetLatestSnapshot(ctx, "room")
	assert.ErrorIs(t, err, repository.ErrSnapshotNotFound)
}
