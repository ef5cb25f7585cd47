package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"retro-paint/internal/domain"
	"retro-paint/internal/dto"
	"retro-paint/internal/service"
)

const (
	closeNormal   = websocket.CloseNormalClosure
	closeTryAgain = websocket.CloseTryAgainLater
)

// Client 代表一个连接到 Hub 的会话 (一个连接对应一个房间)。
type Client struct {
	hub      *Hub
	conn     *websocket.Conn // 测试中可以为 nil
	id       string
	userID   string
	username string
	roomID   string

	// presence 受所在房间的锁保护
	presence domain.Presence

	sendMu    sync.Mutex
	send      chan []byte
	closed    bool
	closeCode int
}

// NewClient 创建会话。buffer 是出站队列容量，<= 0 时使用 DefaultSendBuffer。
func NewClient(hub *Hub, conn *websocket.Conn, userID, username string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		hub:       hub,
		conn:      conn,
		id:        uuid.NewString(),
		userID:    userID,
		username:  username,
		send:      make(chan []byte, buffer),
		closeCode: closeNormal,
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) UserID() string   { return c.userID }
func (c *Client) Username() string { return c.username }
func (c *Client) RoomID() string   { return c.roomID }

// enqueue 非阻塞地放入出站队列，队列已满或已关闭时返回 false。
func (c *Client) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend 关闭出站队列，WritePump 会用 code 发送关闭帧后退出
func (c *Client) closeSend(code int) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	close(c.send)
}

// Run 启动读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump 从连接读取消息并同步交给 Hub，保证同一发送者的消息顺序。
func (c *Client) ReadPump() {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID, "session_id": c.id})
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
		logCtx.Debug("readPump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := dto.Decode(data)
		if err != nil {
			c.enqueue(mustEncode(dto.NewError(dto.CodeBadMessage, err.Error())))
			continue
		}
		if err := c.hub.Broadcast(c, msg); err != nil {
			switch {
			case errors.Is(err, ErrNotMember):
				return
			case errors.Is(err, service.ErrInvalidOperation),
				errors.Is(err, service.ErrInvalidSnapshot),
				errors.Is(err, ErrUnsupportedMessage):
				c.enqueue(mustEncode(dto.NewError(dto.CodeBadMessage, err.Error())))
			default:
				c.enqueue(mustEncode(dto.NewError(dto.CodeInternal, "message could not be processed")))
			}
		}
	}
}

// WritePump 把出站队列中的消息写入连接，并定期发送 ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.sendMu.Lock()
				code := c.closeCode
				c.sendMu.Unlock()
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID}).WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Reject 在 Join 失败后向连接写入 error 帧并关闭。
func Reject(conn *websocket.Conn, code, message string, closeCode int) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.TextMessage, mustEncode(dto.NewError(code, message)))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, code))
	_ = conn.Close()
}
