package bootstrap

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	httpHandler "retro-paint/internal/handler/http"
	wsHandler "retro-paint/internal/handler/websocket"
	"retro-paint/internal/hub"
	"retro-paint/internal/middleware"
	"retro-paint/internal/repository"
	"retro-paint/internal/service"
)

// RouterDeps 是构建 HTTP 路由需要的组件
type RouterDeps struct {
	Log             *logrus.Logger
	Rooms           *service.RoomService
	Hub             *hub.Hub
	State           repository.StateRepository
	AllowedOrigin   string
	RateLimitMax    int
	RateLimitWindow time.Duration
	SendBuffer      int
}

// NewRouter 组装 gin 引擎：房间 API、WebSocket 入口和健康检查
func NewRouter(d RouterDeps) *gin.Engine {
	roomHandler := httpHandler.NewRoomHandler(d.Rooms, d.Hub)
	ws := wsHandler.NewWebSocketHandler(d.Hub, d.Rooms, d.AllowedOrigin, d.SendBuffer)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(d.Log))
	router.Use(CORSMiddleware(d.AllowedOrigin))

	api := router.Group("/api")
	api.Use(middleware.RateLimit(d.State, d.RateLimitMax, d.RateLimitWindow))
	{
		api.POST("/rooms", roomHandler.CreateRoom)
		api.GET("/rooms", roomHandler.ListRooms)
		api.GET("/rooms/:roomId", roomHandler.GetRoom)
		api.POST("/rooms/:roomId/ticket", roomHandler.IssueTicket)
	}

	router.GET("/ws", middleware.RoomTicket(d.Rooms), ws.HandleConnection)
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	return router
}

// CORSMiddleware 为浏览器客户端设置跨域响应头
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		if allowedOrigin != "*" {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			// 查询串里可能有房间密码
			path += "?…"
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
