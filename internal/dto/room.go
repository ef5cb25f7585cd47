package dto

import (
	"time"

	"retro-paint/internal/domain"
)

// CreateRoomRequest 是 POST /api/rooms 的请求体
type CreateRoomRequest struct {
	Name      string `json:"name" binding:"required"`
	MaxUsers  int    `json:"maxUsers" binding:"required"`
	IsPrivate bool   `json:"isPrivate"`
	Password  string `json:"password"`
}

// RoomView 是对外展示的房间信息，附带当前在线人数。
type RoomView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MaxUsers     int       `json:"maxUsers"`
	CurrentUsers int       `json:"currentUsers"`
	IsPrivate    bool      `json:"isPrivate"`
	CreatedAt    time.Time `json:"createdAt"`
}

func NewRoomView(r *domain.Room, currentUsers int) RoomView {
	return RoomView{
		ID:           r.ID,
		Name:         r.Name,
		MaxUsers:     r.MaxUsers,
		CurrentUsers: currentUsers,
		IsPrivate:    r.IsPrivate,
		CreatedAt:    r.CreatedAt,
	}
}

type TicketRequest struct {
	Password string `json:"password"`
}

type TicketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
}
