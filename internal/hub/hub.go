package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"retro-paint/internal/domain"
	"retro-paint/internal/dto"
	"retro-paint/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// paste 和 canvasState 帧携带整张 PNG，需要较大的上限
	maxMessageSize = 8 << 20

	// DefaultSendBuffer 是每个会话出站队列的默认容量
	DefaultSendBuffer = 256

	// undo/redo/canvasState 在房间锁内等待画布 actor 的上限
	defaultCanvasWait = 5 * time.Second
)

var (
	ErrNotMember          = errors.New("session is not a member of the room")
	ErrUnsupportedMessage = errors.New("unsupported message type")
)

// Admitter 负责房间准入 (存在性与私有房间凭证)。
type Admitter interface {
	Admit(ctx context.Context, roomID string, creds service.Credentials) (*domain.Room, error)
}

// Canvas 是 Hub 依赖的画布存储能力。
type Canvas interface {
	GetSnapshot(ctx context.Context, roomID string) (*domain.CanvasSnapshot, error)
	Submit(roomID string, op domain.DrawingOperation) error
	Undo(ctx context.Context, roomID string) (*domain.CanvasSnapshot, bool, error)
	Redo(ctx context.Context, roomID string) (*domain.CanvasSnapshot, bool, error)
	ReplaceSnapshot(ctx context.Context, roomID string, snap domain.CanvasSnapshot) (*domain.CanvasSnapshot, error)
}

// room 是一个房间的在线成员集合。mu 串行化该房间的加入、离开与广播。
type room struct {
	id      string
	mu      sync.Mutex
	members []*Client // 按加入顺序
	closed  bool      // 已变空并从 Hub 移除
}

func (r *room) indexOf(c *Client) int {
	for i, m := range r.members {
		if m == c {
			return i
		}
	}
	return -1
}

// Hub 维护各房间的在线会话，并把消息扇出给房间内其他成员。
type Hub struct {
	registry Admitter
	canvas   Canvas

	mu    sync.RWMutex
	rooms   map[string]*room
	idle    map[string]time.Time // 房间最近一次变空的时间
	retired map[string]struct{}  // 正在被回收的房间，拒绝新的加入

	onEmpty    func(roomID string)
	now        func() time.Time
	canvasWait time.Duration
}

// NewHub 创建 Hub 实例
func NewHub(registry Admitter, canvas Canvas) *Hub {
	if registry == nil {
		panic("Admitter cannot be nil for Hub")
	}
	if canvas == nil {
		panic("Canvas cannot be nil for Hub")
	}
	return &Hub{
		registry:   registry,
		canvas:     canvas,
		rooms:      make(map[string]*room),
		idle:       make(map[string]time.Time),
		retired:    make(map[string]struct{}),
		now:        time.Now,
		canvasWait: defaultCanvasWait,
	}
}

// OnRoomEmpty 注册房间最后一个成员离开时的回调。回调在锁外执行。
func (h *Hub) OnRoomEmpty(fn func(roomID string)) {
	h.onEmpty = fn
}

// Join 让会话加入房间。
//
// 准入检查之后，在房间锁内依次完成：容量检查、获取画布快照 (排在已提交的渲染之后)、
// 加入成员、先向新成员发送 canvasState，再向所有成员广播 userList 与 userCount。
func (h *Hub) Join(ctx context.Context, c *Client, roomID string, creds service.Credentials) (*domain.Room, *domain.CanvasSnapshot, error) {
	info, err := h.registry.Admit(ctx, roomID, creds)
	if err != nil {
		return nil, nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": info.ID, "user_id": c.userID, "session_id": c.id})

	for {
		r := h.room(info.ID)
		r.mu.Lock()
		if r.closed {
			// 并发的 Leave 刚把这个房间移除，重新获取
			r.mu.Unlock()
			continue
		}
		if h.isRetired(info.ID) {
			h.dropIfUnusedLocked(r)
			r.mu.Unlock()
			logCtx.Warn("Join rejected: room is being removed")
			return nil, nil, service.ErrRoomNotFound
		}

		if len(r.members) >= info.MaxUsers {
			r.mu.Unlock()
			logCtx.WithField("max_users", info.MaxUsers).Warn("Join rejected: room full")
			return nil, nil, service.ErrRoomFull
		}

		snap, err := h.canvas.GetSnapshot(ctx, info.ID)
		if err != nil {
			h.dropIfUnusedLocked(r)
			r.mu.Unlock()
			logCtx.WithError(err).Error("Join failed: canvas snapshot unavailable")
			return nil, nil, err
		}

		c.roomID = info.ID
		c.presence = domain.DefaultPresence()
		r.members = append(r.members, c)
		c.enqueue(mustEncode(dto.NewCanvasState(info.ID, snap)))
		h.broadcastRosterLocked(r)
		count := len(r.members)
		r.mu.Unlock()

		h.mu.Lock()
		delete(h.idle, info.ID)
		h.mu.Unlock()

		logCtx.WithField("member_count", count).Info("Session joined room")
		return info, snap, nil
	}
}

// Leave 移除会话。重复调用是安全的。
func (h *Hub) Leave(c *Client) {
	h.mu.RLock()
	r, ok := h.rooms[c.roomID]
	h.mu.RUnlock()
	if !ok {
		c.closeSend(closeNormal)
		return
	}

	r.mu.Lock()
	if r.indexOf(c) < 0 {
		r.mu.Unlock()
		c.closeSend(closeNormal)
		return
	}
	h.detachLocked(r, c, closeNormal)
	emptied := h.settleLocked(r)
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{"room_id": r.id, "user_id": c.userID, "session_id": c.id}).Info("Session left room")
	if emptied {
		h.fireEmpty(r.id)
	}
}

// Broadcast 处理会话发来的一条消息。
//
// drawing、chat、presence 扇出给除发送者以外的所有成员；undo、redo、canvasState
// 更新画布后把新的 canvasState 发给所有成员 (包括发送者)。
// 同一发送者的消息按调用顺序扇出。
//
// undo、redo、canvasState 在房间锁内等待画布 actor (最多 canvasWait)，
// 这样结果帧与前后的 drawing 帧在每个接收者处保持同一顺序。等待期间该房间的
// presence 会被推迟，但不会丢失。
func (h *Hub) Broadcast(c *Client, msg dto.Message) error {
	h.mu.RLock()
	r, ok := h.rooms[c.roomID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotMember
	}

	r.mu.Lock()
	if r.indexOf(c) < 0 {
		r.mu.Unlock()
		return ErrNotMember
	}

	msg.UserID = c.userID
	msg.RoomID = r.id
	msg.Timestamp = h.now().UnixMilli()

	var (
		err     error
		emptied bool
	)
	switch msg.Type {
	case dto.TypeDrawing:
		var op domain.DrawingOperation
		op, err = msg.Operation()
		if err != nil {
			err = errors.Join(service.ErrInvalidOperation, err)
			break
		}
		if err = h.canvas.Submit(r.id, op); err != nil {
			break
		}
		emptied = h.fanoutLocked(r, c, mustEncode(dto.NewDrawing(op)), true)

	case dto.TypeChat:
		emptied = h.fanoutLocked(r, c, mustEncode(dto.NewChat(c.userID, c.username, r.id, msg.Message, msg.Timestamp)), true)

	case dto.TypePresence:
		var p domain.Presence
		p, err = msg.Presence()
		if err != nil {
			break
		}
		c.presence = p
		out := dto.NewPresence(c.userID, r.id, p)
		out.Timestamp = msg.Timestamp
		emptied = h.fanoutLocked(r, c, mustEncode(out), false)

	case dto.TypeUndo, dto.TypeRedo:
		step := h.canvas.Undo
		if msg.Type == dto.TypeRedo {
			step = h.canvas.Redo
		}
		var (
			snap    *domain.CanvasSnapshot
			changed bool
		)
		ctx, cancel := context.WithTimeout(context.Background(), h.canvasWait)
		snap, changed, err = step(ctx, r.id)
		cancel()
		if err == nil && changed {
			emptied = h.fanoutLocked(r, nil, mustEncode(dto.NewCanvasState(r.id, snap)), true)
		}

	case dto.TypeCanvasState:
		if msg.Canvas == nil {
			err = service.ErrInvalidSnapshot
			break
		}
		var snap *domain.CanvasSnapshot
		ctx, cancel := context.WithTimeout(context.Background(), h.canvasWait)
		snap, err = h.canvas.ReplaceSnapshot(ctx, r.id, *msg.Canvas)
		cancel()
		if err == nil {
			emptied = h.fanoutLocked(r, nil, mustEncode(dto.NewCanvasState(r.id, snap)), true)
		}

	default:
		err = ErrUnsupportedMessage
	}
	r.mu.Unlock()

	if emptied {
		h.fireEmpty(r.id)
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id":  r.id,
			"user_id":  c.userID,
			"msg_type": msg.Type,
		}).Warn("Broadcast: message rejected")
	}
	return err
}

// MemberCount 返回房间当前在线人数
func (h *Hub) MemberCount(roomID string) int {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Members 返回房间成员的用户 ID，按加入顺序。
func (h *Hub) Members(roomID string) []string {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.members))
	for i, m := range r.members {
		ids[i] = m.userID
	}
	return ids
}

// ActiveRoomIDs 返回当前有在线成员的房间
func (h *Hub) ActiveRoomIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

// IdleSince 返回房间变空的时间。房间有成员或本进程从未见过该房间时 ok 为 false。
func (h *Hub) IdleSince(roomID string) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, active := h.rooms[roomID]; active {
		return time.Time{}, false
	}
	t, ok := h.idle[roomID]
	return t, ok
}

// Retire 在房间锁内确认房间没有成员并把它标记为回收中，之后的 Join 返回
// ErrRoomNotFound。房间仍有成员时返回 false。回收结束 (或放弃) 后调用 Forget。
func (h *Hub) Retire(roomID string) bool {
	for {
		r := h.room(roomID)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}
		if len(r.members) > 0 {
			r.mu.Unlock()
			return false
		}
		r.closed = true
		h.mu.Lock()
		if h.rooms[r.id] == r {
			delete(h.rooms, r.id)
		}
		h.retired[roomID] = struct{}{}
		h.mu.Unlock()
		r.mu.Unlock()
		return true
	}
}

// Forget 清除房间的空闲记录和回收标记 (房间被删除或回收失败后调用)
func (h *Hub) Forget(roomID string) {
	h.mu.Lock()
	delete(h.idle, roomID)
	delete(h.retired, roomID)
	h.mu.Unlock()
}

func (h *Hub) isRetired(roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.retired[roomID]
	return ok
}

// --- 内部方法，调用方必须持有 r.mu ---

func (h *Hub) room(id string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	if !ok {
		r = &room{id: id}
		h.rooms[id] = r
	}
	return r
}

// dropIfUnusedLocked 移除从未有成员加入的房间记录
func (h *Hub) dropIfUnusedLocked(r *room) {
	if len(r.members) > 0 {
		return
	}
	r.closed = true
	h.mu.Lock()
	if h.rooms[r.id] == r {
		delete(h.rooms, r.id)
	}
	h.mu.Unlock()
}

func (h *Hub) detachLocked(r *room, c *Client, code int) {
	i := r.indexOf(c)
	if i < 0 {
		return
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	c.closeSend(code)
}

// settleLocked 在成员变化后广播名单；房间变空时把它从 Hub 移除并返回 true。
func (h *Hub) settleLocked(r *room) bool {
	if len(r.members) > 0 {
		h.broadcastRosterLocked(r)
		return false
	}
	r.closed = true
	h.mu.Lock()
	if h.rooms[r.id] == r {
		delete(h.rooms, r.id)
	}
	h.idle[r.id] = h.now()
	h.mu.Unlock()
	return true
}

// fanoutLocked 把 data 放入除 except 以外所有成员的出站队列。
// critical 为 true 时，队列已满的成员会被驱逐 (断开后通过重连与快照对账恢复)；
// 否则只丢弃这一条消息。
func (h *Hub) fanoutLocked(r *room, except *Client, data []byte, critical bool) bool {
	var evicted []*Client
	for _, m := range r.members {
		if m == except {
			continue
		}
		if m.enqueue(data) {
			continue
		}
		if critical {
			evicted = append(evicted, m)
		} else {
			logrus.WithFields(logrus.Fields{"room_id": r.id, "user_id": m.userID}).Debug("Outbound queue full, presence dropped")
		}
	}
	if len(evicted) == 0 {
		return false
	}
	for _, m := range evicted {
		logrus.WithFields(logrus.Fields{"room_id": r.id, "user_id": m.userID, "session_id": m.id}).
			Warn("Outbound queue full, evicting session")
		h.detachLocked(r, m, closeTryAgain)
	}
	return h.settleLocked(r)
}

func (h *Hub) broadcastRosterLocked(r *room) {
	users := make([]dto.UserEntry, len(r.members))
	for i, m := range r.members {
		users[i] = dto.UserEntry{ID: m.userID, Username: m.username, Presence: m.presence}
	}
	list := mustEncode(dto.NewUserList(r.id, users))
	count := mustEncode(dto.NewUserCount(r.id, len(r.members)))
	for _, m := range r.members {
		m.enqueue(list)
		m.enqueue(count)
	}
}

func (h *Hub) fireEmpty(roomID string) {
	logrus.WithField("room_id", roomID).Info("Room is now empty")
	if h.onEmpty != nil {
		h.onEmpty(roomID)
	}
}

func mustEncode(m dto.Message) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		// Message 只包含可序列化的字段
		panic(err)
	}
	return data
}
