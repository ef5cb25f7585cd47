package redisstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository"
)

func newTestRepo(t *testing.T) (*RedisStateRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStateRepository(client, "test:"), mr
}

func TestSnapshotCache_RoundTripAndMiss(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetSnapshotCache(ctx, "room-a")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	snap := &domain.CanvasSnapshot{
		RoomID: "room-a", Width: 640, Height: 480, ImageData: "data:image/png;base64,AAA",
		History: []string{"h0", "h1"}, HistoryIndex: 1, LastUpdated: 42,
	}
	require.NoError(t, repo.SetSnapshotCache(ctx, snap, time.Minute))

	got, err := repo.GetSnapshotCache(ctx, "room-a")
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	require.NoError(t, repo.DeleteSnapshotCache(ctx, "room-a"))
	_, err = repo.GetSnapshotCache(ctx, "room-a")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
}

func TestSnapshotCache_Expires(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	snap := &domain.CanvasSnapshot{RoomID: "room-b", History: []string{"h"}, LastUpdated: 1}
	require.NoError(t, repo.SetSnapshotCache(ctx, snap, time.Second))
	mr.FastForward(2 * time.Second)

	_, err := repo.GetSnapshotCache(ctx, "room-b")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
}

func TestRoomActivity(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	last, err := repo.LastActivity(ctx, "room-c")
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "没有记录时应返回零值")

	at := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, repo.TouchRoom(ctx, "room-c", at))
	last, err = repo.LastActivity(ctx, "room-c")
	require.NoError(t, err)
	assert.True(t, at.Equal(last))

	require.NoError(t, repo.CleanupRoomState(ctx, "room-c"))
	last, err = repo.LastActivity(ctx, "room-c")
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestCheckRateLimit(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limited, err := repo.CheckRateLimit(ctx, "1.2.3.4", 3, time.Second)
		require.NoError(t, err)
		assert.False(t, limited, "第 %d 次请求不应被限流", i+1)
	}
	limited, err := repo.CheckRateLimit(ctx, "1.2.3.4", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, limited)

	mr.FastForward(2 * time.Second)
	limited, err = repo.CheckRateLimit(ctx, "1.2.3.4", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, limited, "窗口过期后计数应重置")
}
