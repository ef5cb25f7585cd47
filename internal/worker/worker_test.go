package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository/mocks"
	"retro-paint/internal/tasks"
)

// --- fakes ---

type fakeStore struct {
	mu        sync.Mutex
	persisted []string
	purged    []string
	flushes   int
	err       error
}

func (f *fakeStore) Persist(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, roomID)
	return f.err
}

func (f *fakeStore) FlushDirty(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return 3, f.err
}

func (f *fakeStore) Purge(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, roomID)
	return nil
}

type fakeRegistry struct {
	rooms     []domain.Room
	deleted   []string
	listErr   error
	deleteErr error
}

func (f *fakeRegistry) ListRooms(context.Context) ([]domain.Room, error) {
	return f.rooms, f.listErr
}

func (f *fakeRegistry) DeleteRoom(_ context.Context, roomID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, roomID)
	return nil
}

type fakePresence struct {
	members    map[string]int
	idle       map[string]time.Time
	joinedLate map[string]bool // 在 MemberCount 之后、Retire 之前有人加入
	retired    []string
	forgotten  []string
}

func (f *fakePresence) MemberCount(roomID string) int { return f.members[roomID] }

func (f *fakePresence) IdleSince(roomID string) (time.Time, bool) {
	t, ok := f.idle[roomID]
	return t, ok
}

func (f *fakePresence) Retire(roomID string) bool {
	if f.joinedLate[roomID] {
		return false
	}
	f.retired = append(f.retired, roomID)
	return true
}

func (f *fakePresence) Forget(roomID string) { f.forgotten = append(f.forgotten, roomID) }

// --- persist ---

func TestSnapshotPersistHandler_ProcessTask(t *testing.T) {
	store := &fakeStore{}
	h := NewSnapshotPersistHandler(store)

	payload, err := tasks.NewSnapshotPersistPayload("room-1")
	require.NoError(t, err)

	err = h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeSnapshotPersist, payload))

	require.NoError(t, err)
	assert.Equal(t, []string{"room-1"}, store.persisted)
}

func TestSnapshotPersistHandler_BadPayloadSkipsRetry(t *testing.T) {
	store := &fakeStore{}
	h := NewSnapshotPersistHandler(store)

	for name, data := range map[string][]byte{
		"malformed": []byte("{not json"),
		"no room":   []byte(`{"room_id":""}`),
	} {
		t.Run(name, func(t *testing.T) {
			err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeSnapshotPersist, data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, asynq.SkipRetry))
		})
	}
	assert.Empty(t, store.persisted)
}

func TestSnapshotPersistHandler_StoreErrorIsRetried(t *testing.T) {
	boom := errors.New("db down")
	store := &fakeStore{err: boom}
	h := NewSnapshotPersistHandler(store)
	payload, _ := tasks.NewSnapshotPersistPayload("room-1")

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeSnapshotPersist, payload))

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

// --- flush ---

func TestCanvasFlushHandler_ProcessTask(t *testing.T) {
	store := &fakeStore{}
	h := NewCanvasFlushHandler(store)

	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeCanvasFlush, nil)))
	assert.Equal(t, 1, store.flushes)

	store.err = errors.New("partial failure")
	assert.Error(t, h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeCanvasFlush, nil)))
}

// --- sweep ---

func TestRoomSweepHandler_Sweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-2 * time.Hour)

	registry := &fakeRegistry{rooms: []domain.Room{
		{ID: domain.DefaultRoomID, CreatedAt: old},
		{ID: "busy", CreatedAt: old},
		{ID: "fresh", CreatedAt: now.Add(-time.Minute)},
		{ID: "stale", CreatedAt: old},
		{ID: "recent-redis", CreatedAt: old},
		{ID: "recent-local", CreatedAt: old},
	}}
	presence := &fakePresence{
		members: map[string]int{"busy": 1},
		idle:    map[string]time.Time{"recent-local": now.Add(-5 * time.Minute)},
	}
	store := &fakeStore{}
	state := new(mocks.StateRepository)
	state.On("LastActivity", mock.Anything, "recent-redis").Return(now.Add(-10*time.Minute), nil)
	state.On("LastActivity", mock.Anything, mock.Anything).Return(time.Time{}, nil)
	state.On("CleanupRoomState", mock.Anything, "stale").Return(nil).Once()

	h := NewRoomSweepHandler(registry, presence, store, state, 30*time.Minute)
	h.now = func() time.Time { return now }

	removed, err := h.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"stale"}, registry.deleted)
	assert.Equal(t, []string{"stale"}, store.purged)
	assert.Equal(t, []string{"stale"}, presence.forgotten)
	state.AssertExpectations(t)
}

func TestRoomSweepHandler_NilStateUsesLocalActivity(t *testing.T) {
	now := time.Now()
	registry := &fakeRegistry{rooms: []domain.Room{
		{ID: "a", CreatedAt: now.Add(-time.Hour)},
		{ID: "b", CreatedAt: now.Add(-time.Hour)},
	}}
	presence := &fakePresence{idle: map[string]time.Time{"b": now}}
	store := &fakeStore{}

	h := NewRoomSweepHandler(registry, presence, store, nil, 0)

	removed, err := h.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"a"}, registry.deleted)
}

func TestRoomSweepHandler_JoinBeforeRetireKeepsRoom(t *testing.T) {
	now := time.Now()
	registry := &fakeRegistry{rooms: []domain.Room{{ID: "contested", CreatedAt: now.Add(-time.Hour)}}}
	presence := &fakePresence{joinedLate: map[string]bool{"contested": true}}
	store := &fakeStore{}

	h := NewRoomSweepHandler(registry, presence, store, nil, time.Minute)

	removed, err := h.Sweep(context.Background())

	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Empty(t, registry.deleted)
	assert.Empty(t, store.purged, "a room that gained a member keeps its canvas")
}

func TestRoomSweepHandler_DeleteFailureReopensRoom(t *testing.T) {
	now := time.Now()
	registry := &fakeRegistry{
		rooms:     []domain.Room{{ID: "r1", CreatedAt: now.Add(-time.Hour)}},
		deleteErr: errors.New("db down"),
	}
	presence := &fakePresence{}
	store := &fakeStore{}

	h := NewRoomSweepHandler(registry, presence, store, nil, time.Minute)

	removed, err := h.Sweep(context.Background())

	assert.Error(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, []string{"r1"}, presence.retired)
	assert.Equal(t, []string{"r1"}, presence.forgotten, "retire mark is lifted so joins work again")
	assert.Empty(t, store.purged)
}

func TestRoomSweepHandler_ListFailure(t *testing.T) {
	registry := &fakeRegistry{listErr: errors.New("db down")}
	h := NewRoomSweepHandler(registry, &fakePresence{}, &fakeStore{}, nil, time.Minute)

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeRoomSweep, nil))

	assert.Error(t, err)
}

// --- mux ---

func TestNewServeMux_RoutesByType(t *testing.T) {
	store := &fakeStore{}
	registry := &fakeRegistry{}
	mux := NewServeMux(Handlers{
		Persist: NewSnapshotPersistHandler(store),
		Flush:   NewCanvasFlushHandler(store),
		Sweep:   NewRoomSweepHandler(registry, &fakePresence{}, store, nil, time.Minute),
	})
	ctx := context.Background()

	payload, _ := tasks.NewSnapshotPersistPayload("r1")
	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(tasks.TypeSnapshotPersist, payload)))
	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(tasks.TypeCanvasFlush, nil)))
	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(tasks.TypeRoomSweep, nil)))

	assert.Equal(t, []string{"r1"}, store.persisted)
	assert.Equal(t, 1, store.flushes)

	// 未注册的类型返回错误
	assert.Error(t, mux.ProcessTask(ctx, asynq.NewTask("unknown:type", nil)))
}
