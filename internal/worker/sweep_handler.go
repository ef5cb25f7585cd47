package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"retro-paint/internal/domain"
	"retro-paint/internal/repository"
)

// DefaultRoomIdleTTL 是房间无人后被回收前的默认等待时间
const DefaultRoomIdleTTL = 30 * time.Minute

// RoomRegistry 是清理任务需要的房间注册表能力
type RoomRegistry interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// Presence 报告房间的在线情况，由 hub.Hub 实现
type Presence interface {
	MemberCount(roomID string) int
	IdleSince(roomID string) (time.Time, bool)
	// Retire 原子地确认房间为空并阻止新的加入
	Retire(roomID string) bool
	Forget(roomID string)
}

// CanvasPurger 删除房间的画布，由 service.CanvasStore 实现
type CanvasPurger interface {
	Purge(ctx context.Context, roomID string) error
}

// RoomSweepHandler 回收长时间无人的房间
type RoomSweepHandler struct {
	rooms    RoomRegistry
	presence Presence
	canvas   CanvasPurger
	state    repository.StateRepository // 可为 nil
	ttl      time.Duration
	now      func() time.Time
}

// NewRoomSweepHandler 创建 Handler 实例。ttl <= 0 时使用 DefaultRoomIdleTTL。
func NewRoomSweepHandler(rooms RoomRegistry, presence Presence, canvas CanvasPurger, state repository.StateRepository, ttl time.Duration) *RoomSweepHandler {
	if rooms == nil {
		panic("RoomRegistry cannot be nil for RoomSweepHandler")
	}
	if presence == nil {
		panic("Presence cannot be nil for RoomSweepHandler")
	}
	if canvas == nil {
		panic("CanvasPurger cannot be nil for RoomSweepHandler")
	}
	if ttl <= 0 {
		ttl = DefaultRoomIdleTTL
	}
	return &RoomSweepHandler{
		rooms:    rooms,
		presence: presence,
		canvas:   canvas,
		state:    state,
		ttl:      ttl,
		now:      time.Now,
	}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	removed, err := h.Sweep(ctx)
	if removed > 0 {
		logCtx.WithField("removed", removed).Info("Idle rooms swept")
	}
	if err != nil {
		logCtx.WithError(err).Error("Room sweep finished with errors")
		return err
	}
	return nil
}

// Sweep 删除所有超过 ttl 无人的非默认房间，返回删除的数量
func (h *RoomSweepHandler) Sweep(ctx context.Context) (int, error) {
	rooms, err := h.rooms.ListRooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}

	now := h.now()
	removed := 0
	var errs []error
	for i := range rooms {
		room := &rooms[i]
		if room.IsDefault() || h.presence.MemberCount(room.ID) > 0 {
			continue
		}
		if now.Sub(h.lastActivity(ctx, room)) < h.ttl {
			continue
		}
		if !h.presence.Retire(room.ID) {
			// 检查之后有人加入了
			continue
		}
		if err := h.remove(ctx, room.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// lastActivity 取本进程记录、Redis 标记和创建时间中最新的一个
func (h *RoomSweepHandler) lastActivity(ctx context.Context, room *domain.Room) time.Time {
	last := room.CreatedAt
	if t, ok := h.presence.IdleSince(room.ID); ok && t.After(last) {
		last = t
	}
	if h.state != nil {
		t, err := h.state.LastActivity(ctx, room.ID)
		if err != nil {
			logrus.WithError(err).WithField("room_id", room.ID).Warn("RoomSweep: failed to read last activity")
		} else if t.After(last) {
			last = t
		}
	}
	return last
}

func (h *RoomSweepHandler) remove(ctx context.Context, roomID string) error {
	logCtx := logrus.WithField("room_id", roomID)

	if err := h.rooms.DeleteRoom(ctx, roomID); err != nil {
		h.presence.Forget(roomID)
		logCtx.WithError(err).Error("RoomSweep: failed to delete room")
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	if err := h.canvas.Purge(ctx, roomID); err != nil {
		// 房间已删除，画布残留只浪费空间
		logCtx.WithError(err).Warn("RoomSweep: failed to purge canvas")
	}
	if h.state != nil {
		if err := h.state.CleanupRoomState(ctx, roomID); err != nil {
			logCtx.WithError(err).Warn("RoomSweep: failed to cleanup room state")
		}
	}
	h.presence.Forget(roomID)
	logCtx.Info("RoomSweep: idle room removed")
	return nil
}
