package tasks

import (
	"encoding/json"
	"errors"
)

// 任务类型常量
const (
	TypeSnapshotPersist = "snapshot:persist" // 持久化单个房间的画布
	TypeCanvasFlush     = "canvas:flush"     // 周期性落盘所有脏画布
	TypeRoomSweep       = "rooms:sweep"      // 周期性清理闲置房间
)

// ErrEmptyRoomID 表示任务 payload 缺少房间 ID。
var ErrEmptyRoomID = errors.New("tasks: empty room id")

// SnapshotPersistPayload 是 TypeSnapshotPersist 任务的数据结构
type SnapshotPersistPayload struct {
	RoomID string `json:"room_id"`
}

// NewSnapshotPersistPayload 序列化持久化任务的 payload
func NewSnapshotPersistPayload(roomID string) ([]byte, error) {
	if roomID == "" {
		return nil, ErrEmptyRoomID
	}
	return json.Marshal(SnapshotPersistPayload{RoomID: roomID})
}

// ParseSnapshotPersistPayload 反序列化并校验 payload
func ParseSnapshotPersistPayload(data []byte) (SnapshotPersistPayload, error) {
	var p SnapshotPersistPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, err
	}
	if p.RoomID == "" {
		return p, ErrEmptyRoomID
	}
	return p, nil
}
