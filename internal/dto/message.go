package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"retro-paint/internal/domain"
)

// 消息类型 (type 字段)
const (
	TypeDrawing     = "drawing"
	TypeChat        = "chat"
	TypePresence    = "presence"
	TypeUserCount   = "userCount"
	TypeUserList    = "userList"
	TypeCanvasState = "canvasState"
	TypeError       = "error"
	TypeUndo        = "undo"
	TypeRedo        = "redo"
)

// error 消息的 code 字段
const (
	CodeRoomFull     = "room_full"
	CodeUnauthorized = "unauthorized"
	CodeRoomNotFound = "room_not_found"
	CodeBadMessage   = "bad_message"
	CodeInternal     = "internal"
)

// Message 是 WebSocket 上传输的唯一帧格式，按 Type 区分语义。
// Payload 对 drawing 是 domain.OperationPayload，对 presence 是 domain.Presence。
type Message struct {
	Type        string                 `json:"type"`
	DrawingType domain.OperationKind   `json:"drawingType,omitempty"`
	UserID      string                 `json:"userId,omitempty"`
	Username    string                 `json:"username,omitempty"`
	RoomID      string                 `json:"roomId,omitempty"`
	Timestamp   int64                  `json:"timestamp,omitempty"`
	Payload     json.RawMessage        `json:"payload,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Count       *int                   `json:"count,omitempty"`
	Users       []UserEntry            `json:"users,omitempty"`
	Canvas      *domain.CanvasSnapshot `json:"canvas,omitempty"`
	Code        string                 `json:"code,omitempty"`
}

// UserEntry 是 userList 中的一项。
type UserEntry struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Presence domain.Presence `json:"presence"`
}

// Now 返回 unix 毫秒时间戳
func Now() int64 { return time.Now().UnixMilli() }

// Decode 解析一帧。
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return m, nil
}

// Encode 序列化一帧。
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func NewDrawing(op domain.DrawingOperation) Message {
	raw, _ := json.Marshal(op.Payload)
	return Message{
		Type:        TypeDrawing,
		DrawingType: op.Kind,
		UserID:      op.UserID,
		RoomID:      op.RoomID,
		Timestamp:   op.Timestamp,
		Payload:     raw,
	}
}

// Operation 把 drawing 消息还原为领域操作。
func (m Message) Operation() (domain.DrawingOperation, error) {
	op := domain.DrawingOperation{
		Kind:      m.DrawingType,
		UserID:    m.UserID,
		RoomID:    m.RoomID,
		Timestamp: m.Timestamp,
	}
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &op.Payload); err != nil {
			return op, fmt.Errorf("decode drawing payload: %w", err)
		}
	}
	if err := op.Validate(); err != nil {
		return op, err
	}
	return op, nil
}

func NewChat(userID, username, roomID, text string, ts int64) Message {
	return Message{Type: TypeChat, UserID: userID, Username: username, RoomID: roomID, Message: text, Timestamp: ts}
}

func NewPresence(userID, roomID string, p domain.Presence) Message {
	raw, _ := json.Marshal(p)
	return Message{Type: TypePresence, UserID: userID, RoomID: roomID, Payload: raw}
}

// Presence 解析 presence 消息的 payload。
func (m Message) Presence() (domain.Presence, error) {
	var p domain.Presence
	if len(m.Payload) == 0 {
		return p, fmt.Errorf("presence payload missing")
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("decode presence payload: %w", err)
	}
	return p, nil
}

func NewUserCount(roomID string, count int) Message {
	return Message{Type: TypeUserCount, RoomID: roomID, Count: &count, Timestamp: Now()}
}

func NewUserList(roomID string, users []UserEntry) Message {
	if users == nil {
		users = []UserEntry{}
	}
	return Message{Type: TypeUserList, RoomID: roomID, Users: users, Timestamp: Now()}
}

func NewCanvasState(roomID string, snap *domain.CanvasSnapshot) Message {
	return Message{Type: TypeCanvasState, RoomID: roomID, Canvas: snap, Timestamp: Now()}
}

func NewError(code, message string) Message {
	return Message{Type: TypeError, Code: code, Message: message, Timestamp: Now()}
}
