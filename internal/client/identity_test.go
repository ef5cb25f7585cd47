package client

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retro-paint/internal/domain"
)

func TestIdentityStore_GetOrCreateUserIsStable(t *testing.T) {
	dir := t.TempDir()
	store, err := NewIdentityStore(dir)
	require.NoError(t, err)

	u, err := store.GetOrCreateUser()
	require.NoError(t, err)
	assert.Regexp(t, `^user-\d+-[a-z0-9]{7}$`, u.ID)
	assert.Regexp(t, `^(Retro|Pixel|Neon|Cyber|Digital|Classic|Vintage|Cool)(Artist|Painter|Creator|Designer|Sketcher|Doodler|Master|Pro)\d{1,2}$`, u.Username)

	reopened, err := NewIdentityStore(dir)
	require.NoError(t, err)
	again, err := reopened.GetOrCreateUser()
	require.NoError(t, err)
	assert.Equal(t, u, again)
	assert.FileExists(t, filepath.Join(dir, "user.json"))
}

func TestIdentityStore_Room(t *testing.T) {
	store, err := NewIdentityStore(t.TempDir())
	require.NoError(t, err)

	ref, err := store.LoadRoom()
	require.NoError(t, err)
	assert.Nil(t, ref)

	require.NoError(t, store.SaveRoom(RoomRef{ID: "r1", Name: "demo"}))
	ref, err = store.LoadRoom()
	require.NoError(t, err)
	assert.Equal(t, &RoomRef{ID: "r1", Name: "demo"}, ref)
	assert.Equal(t, domain.DefaultRoomID, store.DefaultRoomID())
}

func TestIdentityStore_CanvasKeepsRecentHistory(t *testing.T) {
	store, err := NewIdentityStore(t.TempDir())
	require.NoError(t, err)

	history := make([]string, 30)
	for i := range history {
		history[i] = fmt.Sprintf("frame-%d", i)
	}
	require.NoError(t, store.SaveCanvas("r1", domain.CanvasSnapshot{
		Width: 640, Height: 480, ImageData: "frame-29",
		History: history, HistoryIndex: 29, LastUpdated: 1234,
	}))

	got, err := store.LoadCanvas("r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r1", got.RoomID)
	assert.Len(t, got.History, LocalHistoryLimit)
	assert.Equal(t, "frame-10", got.History[0])
	assert.Equal(t, 19, got.HistoryIndex)
	assert.Equal(t, int64(1234), got.LastUpdated, "cache keeps the snapshot's own timestamp")
}

func TestIdentityStore_StaleCanvasDiscarded(t *testing.T) {
	dir := t.TempDir()
	store, err := NewIdentityStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveCanvas("r1", domain.CanvasSnapshot{ImageData: "x", History: []string{"x"}}))

	store.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	got, err := store.LoadCanvas("r1")
	require.NoError(t, err)
	assert.Nil(t, got)
	_, statErr := os.Stat(filepath.Join(dir, "canvas.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestIdentityStore_CanvasOfAnotherRoomIgnored(t *testing.T) {
	store, err := NewIdentityStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SaveCanvas("room-a", domain.CanvasSnapshot{ImageData: "a", LastUpdated: 99}))

	got, err := store.LoadCanvas("room-b")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.LoadCanvas("room-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ImageData)
}

func TestIdentityStore_Clear(t *testing.T) {
	store, err := NewIdentityStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.GetOrCreateUser()
	require.NoError(t, err)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear(), "clearing twice is fine")
}
