package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"retro-paint/internal/dto"
	"retro-paint/internal/service"
)

// MemberCounter 提供房间的实时在线人数 (由 Hub 实现)
type MemberCounter interface {
	MemberCount(roomID string) int
}

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
	members     MemberCounter
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService, members MemberCounter) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	if members == nil {
		panic("MemberCounter cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService, members: members}
}

// CreateRoom 处理 POST /api/rooms
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateRoom: invalid request body")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), req.Name, req.MaxUsers, req.IsPrivate, req.Password)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, dto.NewRoomView(room, 0))
}

// ListRooms 处理 GET /api/rooms
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListRooms(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	views := make([]dto.RoomView, 0, len(rooms))
	for i := range rooms {
		views = append(views, dto.NewRoomView(&rooms[i], h.members.MemberCount(rooms[i].ID)))
	}
	SuccessResponse(c, http.StatusOK, views)
}

// GetRoom 处理 GET /api/rooms/:roomId
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.GetRoomInfo(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.NewRoomView(room, h.members.MemberCount(room.ID)))
}

// IssueTicket 处理 POST /api/rooms/:roomId/ticket，请求体可以为空 (公开房间)。
func (h *RoomHandler) IssueTicket(c *gin.Context) {
	var req dto.TicketRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	ticket, exp, err := h.roomService.IssueTicket(c.Request.Context(), c.Param("roomId"), req.Password)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.TicketResponse{Ticket: ticket, ExpiresAt: exp})
}
