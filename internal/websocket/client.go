package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 读取pong超时
	pongWait = 60 * time.Second

	// ping发送周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 64 * 1024 // 64KB
)

// Client WebSocket客户端
type Client struct {
	ID       string          // 客户端ID
	UserID   uint            // 用户ID
	Username string          // 用户名（聊天署名）
	Channel  string          // 所属频道（lobby或game:<sessionId>）
	Hub      *Hub            // Hub引用
	Conn     *websocket.Conn // WebSocket连接
	Send     chan []byte     // 发送通道

	// done 注销信号，Send通道本身从不关闭
	done    chan struct{}
	handler ChannelHandler
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn, userID uint, username, channel string, handler ChannelHandler) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		Username: username,
		Channel:  channel,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		handler:  handler,
	}
}

// SessionID 会话频道对应的会话ID，大厅连接返回空串
func (c *Client) SessionID() string {
	if len(c.Channel) > len(sessionChannelPrefix) && c.Channel[:len(sessionChannelPrefix)] == sessionChannelPrefix {
		return c.Channel[len(sessionChannelPrefix):]
	}
	return ""
}

// ReadPump 读取消息
//
// 单读循环保证同一连接的事件按到达顺序处理。
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		if c.handler != nil {
			c.handler.HandleMessage(c, message)
		}
	}
}

// WritePump 写入消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Hub注销了客户端
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 批量发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendEvent 发送事件给客户端
func (c *Client) SendEvent(event string, payload interface{}) error {
	return c.Hub.SendToClient(c.ID, event, payload)
}

// SendError 发送错误事件
func (c *Client) SendError(event string, message string) {
	if err := c.Hub.SendToClient(c.ID, event, ErrorPayload{Message: message}); err != nil {
		c.Hub.logger.Debug("错误事件发送失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
	}
}

// Close 关闭客户端连接
func (c *Client) Close() {
	c.Hub.unregister <- c
}
