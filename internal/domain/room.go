package domain

import "time"

// DefaultRoomID 是未指定房间时使用的公共房间。
const DefaultRoomID = "default-collaboration-room"

// Room capacity bounds enforced at creation time.
const (
	MinRoomUsers = 2
	MaxRoomUsers = 50
)

// Room 表示一个协作画布房间。
type Room struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Name         string    `gorm:"size:191;not null" json:"name"`
	MaxUsers     int       `gorm:"not null" json:"maxUsers"`
	IsPrivate    bool      `gorm:"not null;default:false" json:"isPrivate"`
	PasswordHash string    `gorm:"type:text" json:"-"`                   // 只保存 bcrypt 哈希，永不序列化
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"createdAt"` // 房间创建时间
}

// IsDefault reports whether r is the well-known shared room.
func (r *Room) IsDefault() bool { return r.ID == DefaultRoomID }
