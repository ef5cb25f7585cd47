package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	httpHandler "retro-paint/internal/handler/http"
	"retro-paint/internal/dto"
	"retro-paint/internal/hub"
	"retro-paint/internal/middleware"
	"retro-paint/internal/service"
)

// 拒绝加入时使用的私有关闭码 (4000-4999)
const (
	CloseUnauthorized = 4403
	CloseRoomNotFound = 4404
	CloseRoomFull     = 4409
)

const (
	joinTimeout  = 10 * time.Second
	userIDPrefix = "user-"
)

// WebSocketHandler 负责处理 WebSocket 升级请求并把会话加入 Hub
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	hub        *hub.Hub
	registry   hub.Admitter
	sendBuffer int
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。allowedOrigin 为空或 "*" 时允许任意来源。
func NewWebSocketHandler(h *hub.Hub, registry hub.Admitter, allowedOrigin string, sendBuffer int) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if registry == nil {
		panic("Admitter cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}

	return &WebSocketHandler{upgrader: upgrader, hub: h, registry: registry, sendBuffer: sendBuffer}
}

// HandleConnection 处理 GET /ws?username=&userId=&roomId=&password=&ticket=
//
// 房间不存在或凭证错误时在升级前返回 HTTP 错误；升级后 Join 失败则发送 error 帧并关闭。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	userID, username := resolveIdentity(c.Query("userId"), c.Query("username"))
	creds := service.Credentials{Password: c.Query("password"), Ticket: c.GetString(middleware.TicketContextKey)}
	if creds.Ticket == "" {
		creds.Ticket = c.Query("ticket")
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": c.Query("roomId")})

	room, err := h.registry.Admit(c.Request.Context(), c.Query("roomId"), creds)
	if err != nil {
		logCtx.WithError(err).Warn("WS Handler: admission rejected before upgrade")
		httpHandler.HandleServiceError(c, err)
		return
	}
	if h.hub.MemberCount(room.ID) >= room.MaxUsers {
		logCtx.Warn("WS Handler: room full before upgrade")
		httpHandler.HandleServiceError(c, service.ErrRoomFull)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, userID, username, h.sendBuffer)
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	if _, _, err := h.hub.Join(ctx, client, room.ID, creds); err != nil {
		code, closeCode := rejection(err)
		logCtx.WithError(err).Warn("WS Handler: join failed after upgrade")
		hub.Reject(conn, code, err.Error(), closeCode)
		return
	}

	client.Run()
	logCtx.WithField("session_id", client.ID()).Info("WS Handler: session started")
}

func rejection(err error) (string, int) {
	switch {
	case errors.Is(err, service.ErrRoomFull):
		return dto.CodeRoomFull, CloseRoomFull
	case errors.Is(err, service.ErrRoomAuth):
		return dto.CodeUnauthorized, CloseUnauthorized
	case errors.Is(err, service.ErrRoomNotFound):
		return dto.CodeRoomNotFound, CloseRoomNotFound
	default:
		return dto.CodeInternal, websocket.CloseInternalServerErr
	}
}

// resolveIdentity 补全缺省的 userId/username，默认用户名取 id 去掉 "user-" 前缀后的前 8 位
func resolveIdentity(userID, username string) (string, string) {
	if userID == "" {
		userID = userIDPrefix + uuid.NewString()
	}
	if username == "" {
		username = "User" + truncate(strings.TrimPrefix(userID, userIDPrefix), 8)
	}
	return userID, username
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
