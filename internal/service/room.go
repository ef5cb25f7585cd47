package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository"
)

// Credentials 是加入私有房间时出示的凭证，二选一即可。
type Credentials struct {
	Password string
	Ticket   string
}

// RoomService 是房间注册表：创建、查询、准入与删除。
// 房间创建后不可变，在线人数由 Hub 统计，不在这里保存。
type RoomService struct {
	roomRepo repository.RoomRepository
	tickets  *TicketService
	now      func() time.Time
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, tickets *TicketService) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if tickets == nil {
		panic("TicketService cannot be nil for RoomService")
	}
	return &RoomService{roomRepo: roomRepo, tickets: tickets, now: time.Now}
}

// CreateRoom 校验参数并创建房间。
func (s *RoomService) CreateRoom(ctx context.Context, name string, maxUsers int, isPrivate bool, password string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRoom)
	case maxUsers < domain.MinRoomUsers || maxUsers > domain.MaxRoomUsers:
		return nil, fmt.Errorf("%w: maxUsers must be between %d and %d", ErrInvalidRoom, domain.MinRoomUsers, domain.MaxRoomUsers)
	case isPrivate && password == "":
		return nil, fmt.Errorf("%w: private room requires a password", ErrInvalidRoom)
	}

	room := &domain.Room{
		ID:        uuid.NewString(),
		Name:      name,
		MaxUsers:  maxUsers,
		IsPrivate: isPrivate,
		CreatedAt: s.now(),
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": room.ID, "room_name": name})

	if isPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logCtx.WithError(err).Error("Failed to hash room password")
			return nil, ErrInternalServer
		}
		room.PasswordHash = string(hash)
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save new room")
		return nil, ErrInternalServer
	}
	logCtx.WithField("private", isPrivate).Info("Room created")
	return room, nil
}

// ListRooms 返回所有房间，新建的在前。
func (s *RoomService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := s.roomRepo.List(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list rooms")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// GetRoomInfo 按 ID 查找房间。
func (s *RoomService) GetRoomInfo(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logrus.WithError(err).WithField("room_id", roomID).Error("GetRoomInfo: repository error")
		}
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Admit 检查房间存在并校验私有房间的凭证。空 roomID 解析为默认房间。
// 容量检查不在这里做，由 Hub 在房间锁内完成。
func (s *RoomService) Admit(ctx context.Context, roomID string, creds Credentials) (*domain.Room, error) {
	if roomID == "" {
		roomID = domain.DefaultRoomID
	}
	room, err := s.GetRoomInfo(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsPrivate {
		return room, nil
	}
	if creds.Ticket != "" && s.tickets.Verify(creds.Ticket, room.ID) == nil {
		return room, nil
	}
	if creds.Password != "" && checkPassword(creds.Password, room.PasswordHash) {
		return room, nil
	}
	logrus.WithField("room_id", room.ID).Warn("Admit: credentials rejected for private room")
	return nil, ErrRoomAuth
}

// IssueTicket 校验密码后为房间签发短期票据。公开房间无需密码。
func (s *RoomService) IssueTicket(ctx context.Context, roomID, password string) (string, time.Time, error) {
	room, err := s.Admit(ctx, roomID, Credentials{Password: password})
	if err != nil {
		return "", time.Time{}, err
	}
	ticket, exp, err := s.tickets.Sign(room.ID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", room.ID).Error("Failed to sign room ticket")
		return "", time.Time{}, ErrInternalServer
	}
	return ticket, exp, nil
}

// VerifyTicket 校验票据是否属于 roomID。
func (s *RoomService) VerifyTicket(ticket, roomID string) error {
	return s.tickets.Verify(ticket, roomID)
}

// DeleteRoom 删除房间。默认房间不可删除。
func (s *RoomService) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == domain.DefaultRoomID {
		return fmt.Errorf("%w: default room cannot be deleted", ErrInvalidRoom)
	}
	if err := s.roomRepo.Delete(ctx, roomID); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to delete room")
		return ErrInternalServer
	}
	logrus.WithField("room_id", roomID).Info("Room deleted")
	return nil
}

// EnsureDefaultRoom 在启动时创建默认房间 (若不存在)。
func (s *RoomService) EnsureDefaultRoom(ctx context.Context) error {
	_, err := s.roomRepo.FindByID(ctx, domain.DefaultRoomID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("lookup default room: %w", err)
	}
	err = s.roomRepo.Create(ctx, &domain.Room{
		ID:        domain.DefaultRoomID,
		Name:      "Default Room",
		MaxUsers:  domain.MaxRoomUsers,
		CreatedAt: s.now(),
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicateEntry) {
		return fmt.Errorf("create default room: %w", err)
	}
	logrus.WithField("room_id", domain.DefaultRoomID).Info("Default room ready")
	return nil
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
