package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"retro-paint/internal/domain"
)

// TicketContextKey 是验证通过的房间票据在 gin.Context 中的 key
const TicketContextKey = "room_ticket"

// TicketVerifier 校验房间票据
type TicketVerifier interface {
	VerifyTicket(ticket, roomID string) error
}

// RoomTicket 返回一个中间件：如果请求带有房间票据 (Authorization: Bearer 或 ?ticket=)，
// 校验它属于目标房间 (:roomId 路径参数或 ?roomId=)。票据无效时返回 403；
// 没有票据时直接放行，交给后续的密码校验。
func RoomTicket(verifier TicketVerifier) gin.HandlerFunc {
	if verifier == nil {
		panic("TicketVerifier cannot be nil for RoomTicket middleware")
	}

	return func(c *gin.Context) {
		ticket := extractTicket(c)
		if ticket == "" {
			c.Next()
			return
		}

		roomID := c.Param("roomId")
		if roomID == "" {
			roomID = c.Query("roomId")
		}
		if roomID == "" {
			roomID = domain.DefaultRoomID
		}

		if err := verifier.VerifyTicket(ticket, roomID); err != nil {
			logrus.WithField("room_id", roomID).Warn("RoomTicket middleware: invalid or expired ticket")
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired room ticket"})
			c.Abort()
			return
		}

		c.Set(TicketContextKey, ticket)
		c.Next()
	}
}

// extractTicket 优先读取 Bearer 头，其次是 ticket 查询参数
func extractTicket(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return c.Query("ticket")
}
