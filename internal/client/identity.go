package client

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"retro-paint/internal/domain"
)

const (
	userFile   = "user.json"
	roomFile   = "room.json"
	canvasFile = "canvas.json"

	// CanvasMaxAge is how long a locally cached canvas stays usable.
	CanvasMaxAge = 24 * time.Hour
	// LocalHistoryLimit bounds the history kept in the local cache.
	LocalHistoryLimit = 20
)

var (
	adjectives = []string{"Retro", "Pixel", "Neon", "Cyber", "Digital", "Classic", "Vintage", "Cool"}
	nouns      = []string{"Artist", "Painter", "Creator", "Designer", "Sketcher", "Doodler", "Master", "Pro"}
)

// RoomRef is the last room the user joined.
type RoomRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type cachedCanvas struct {
	RoomID  string                `json:"roomId"`
	Canvas  domain.CanvasSnapshot `json:"canvas"`
	SavedAt time.Time             `json:"savedAt"`
}

// IdentityStore persists the local user identity, last room and last canvas
// as JSON files in a config directory. It never holds server-authoritative state.
type IdentityStore struct {
	mu      sync.RWMutex
	baseDir string
	now     func() time.Time
	rnd     *rand.Rand
}

// NewIdentityStore creates a store rooted at baseDir.
// If baseDir is empty, defaults to ~/.config/retro-paint/
func NewIdentityStore(baseDir string) (*IdentityStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "retro-paint")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return &IdentityStore{
		baseDir: baseDir,
		now:     time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Path returns the base directory for identity files.
func (s *IdentityStore) Path() string { return s.baseDir }

// DefaultRoomID is the well-known room joined when none is chosen.
func (s *IdentityStore) DefaultRoomID() string { return domain.DefaultRoomID }

// GetOrCreateUser returns the persisted identity, generating and saving a new
// one on first use.
func (s *IdentityStore) GetOrCreateUser() (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var u domain.User
	found, err := s.read(userFile, &u)
	if err != nil {
		return domain.User{}, err
	}
	if found && u.ID != "" {
		return u, nil
	}

	u = domain.User{ID: s.newUserID(), Username: s.newUsername()}
	if err := s.write(userFile, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// SaveUser overwrites the stored identity, e.g. after a rename.
func (s *IdentityStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(userFile, u)
}

func (s *IdentityStore) SaveRoom(ref RoomRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(roomFile, ref)
}

// LoadRoom returns the last joined room, or nil.
func (s *IdentityStore) LoadRoom() (*RoomRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ref RoomRef
	found, err := s.read(roomFile, &ref)
	if err != nil || !found {
		return nil, err
	}
	return &ref, nil
}

// SaveCanvas caches the canvas of roomID locally, keeping only the most
// recent history entries. The snapshot's own LastUpdated is kept as is.
// Only one room is cached at a time.
func (s *IdentityStore) SaveCanvas(roomID string, snap domain.CanvasSnapshot) error {
	c := snap.Clone()
	if over := len(c.History) - LocalHistoryLimit; over > 0 {
		c.History = c.History[over:]
		c.HistoryIndex -= over
		if c.HistoryIndex < 0 {
			c.HistoryIndex = 0
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(canvasFile, cachedCanvas{RoomID: roomID, Canvas: *c, SavedAt: s.now()})
}

// LoadCanvas returns the cached canvas of roomID, or nil if there is none,
// it belongs to another room, or it is older than CanvasMaxAge. Stale caches
// are removed.
func (s *IdentityStore) LoadCanvas(roomID string) (*domain.CanvasSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cached cachedCanvas
	found, err := s.read(canvasFile, &cached)
	if err != nil || !found {
		return nil, err
	}
	if s.now().Sub(cached.SavedAt) > CanvasMaxAge {
		os.Remove(s.path(canvasFile))
		return nil, nil
	}
	if cached.RoomID != roomID {
		return nil, nil
	}
	cached.Canvas.RoomID = roomID
	return &cached.Canvas, nil
}

// Clear removes all persisted state.
func (s *IdentityStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{userFile, roomFile, canvasFile} {
		if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

func (s *IdentityStore) newUserID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 7)
	for i := range b {
		b[i] = alphabet[s.rnd.Intn(len(alphabet))]
	}
	return "user-" + strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + string(b)
}

func (s *IdentityStore) newUsername() string {
	var b strings.Builder
	b.WriteString(adjectives[s.rnd.Intn(len(adjectives))])
	b.WriteString(nouns[s.rnd.Intn(len(nouns))])
	b.WriteString(strconv.Itoa(s.rnd.Intn(100)))
	return b.String()
}

func (s *IdentityStore) path(name string) string {
	return filepath.Join(s.baseDir, name)
}

func (s *IdentityStore) read(name string, v any) (bool, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

func (s *IdentityStore) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(s.path(name), data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
