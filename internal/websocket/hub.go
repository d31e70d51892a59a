package websocket

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// 频道命名
const (
	// ChannelLobby 大厅频道，所有等待匹配的连接共享
	ChannelLobby = "lobby"
	// sessionChannelPrefix 会话频道前缀
	sessionChannelPrefix = "game:"
)

// SessionChannel 会话频道名
func SessionChannel(sessionID string) string {
	return sessionChannelPrefix + sessionID
}

// ChannelHandler 频道事件处理器
//
// 同一连接的事件按到达顺序处理（单读循环保证），
// 不同连接之间没有顺序保证。
type ChannelHandler interface {
	// HandleMessage 处理入站消息
	HandleMessage(client *Client, data []byte)
	// HandleDisconnect 连接断开时的清理
	HandleDisconnect(client *Client)
}

// Hub WebSocket连接管理中心
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 频道成员
	channels  map[string]map[string]*Client
	channelMu sync.RWMutex

	// 用户ID到客户端的映射
	userClients map[uint][]*Client
	userMu      sync.RWMutex

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 日志
	logger *zap.Logger
}

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		channels:    make(map[string]map[string]*Client),
		userClients: make(map[uint][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		logger:      logger,
	}
}

// Run 运行Hub
func (h *Hub) Run() {
	// 启动心跳检测
	go h.runHeartbeat()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	// 加入频道
	h.channelMu.Lock()
	members, ok := h.channels[client.Channel]
	if !ok {
		members = make(map[string]*Client)
		h.channels[client.Channel] = members
	}
	members[client.ID] = client
	h.channelMu.Unlock()

	// 添加到用户客户端映射
	if client.UserID > 0 {
		h.userMu.Lock()
		h.userClients[client.UserID] = append(h.userClients[client.UserID], client)
		h.userMu.Unlock()
	}

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.Uint("user_id", client.UserID),
		zap.String("channel", client.Channel))
}

// unregisterClient 注销客户端
//
// Send通道不关闭，广播方和注销方可能并发，写已关闭通道会崩溃整个进程；
// WritePump通过done信号退出。
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	_, registered := h.clients[client.ID]
	if registered {
		delete(h.clients, client.ID)
		close(client.done)
	}
	h.clientsMu.Unlock()

	if !registered {
		return
	}

	// 离开频道
	h.channelMu.Lock()
	if members, ok := h.channels[client.Channel]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.channels, client.Channel)
		}
	}
	h.channelMu.Unlock()

	// 从用户客户端映射中移除
	if client.UserID > 0 {
		h.userMu.Lock()
		clients := h.userClients[client.UserID]
		for i, c := range clients {
			if c.ID == client.ID {
				h.userClients[client.UserID] = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		if len(h.userClients[client.UserID]) == 0 {
			delete(h.userClients, client.UserID)
		}
		h.userMu.Unlock()
	}

	// 频道处理器做断开清理（匹配队列、判负、驱逐）
	if client.handler != nil {
		client.handler.HandleDisconnect(client)
	}

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.Uint("user_id", client.UserID),
		zap.String("channel", client.Channel))
}

// SendToClient 发送事件给指定客户端
func (h *Hub) SendToClient(clientID string, event string, payload interface{}) error {
	data, err := EncodeEnvelope(event, payload)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	client, ok := h.clients[clientID]
	h.clientsMu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// BroadcastToChannel 广播事件到频道
func (h *Hub) BroadcastToChannel(channel string, event string, payload interface{}) {
	h.broadcastToChannel(channel, "", event, payload)
}

// BroadcastToChannelExcept 广播事件到频道，跳过指定客户端
func (h *Hub) BroadcastToChannelExcept(channel string, exceptID string, event string, payload interface{}) {
	h.broadcastToChannel(channel, exceptID, event, payload)
}

func (h *Hub) broadcastToChannel(channel string, exceptID string, event string, payload interface{}) {
	data, err := EncodeEnvelope(event, payload)
	if err != nil {
		h.logger.Error("序列化消息失败",
			zap.String("event", event),
			zap.Error(err))
		return
	}

	h.channelMu.RLock()
	defer h.channelMu.RUnlock()

	for _, client := range h.channels[channel] {
		if client.ID == exceptID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// 发送缓冲区满，丢弃本条，连接交给心跳超时收尾
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID),
				zap.String("channel", channel))
		}
	}
}

// BroadcastToSession 广播事件到会话频道（实现game.Broadcaster）
func (h *Hub) BroadcastToSession(sessionID string, event string, payload interface{}) {
	h.broadcastToChannel(SessionChannel(sessionID), "", event, payload)
}

// SendToUser 发送事件给用户的所有客户端
func (h *Hub) SendToUser(userID uint, event string, payload interface{}) error {
	data, err := EncodeEnvelope(event, payload)
	if err != nil {
		return err
	}

	h.userMu.RLock()
	clients := h.userClients[userID]
	h.userMu.RUnlock()

	if len(clients) == 0 {
		return ErrUserNotConnected
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("用户客户端发送缓冲区满",
				zap.String("client_id", client.ID),
				zap.Uint("user_id", userID))
		}
	}

	return nil
}

// ChannelSize 频道内的连接数
func (h *Hub) ChannelSize(channel string) int {
	h.channelMu.RLock()
	defer h.channelMu.RUnlock()
	return len(h.channels[channel])
}

// GetOnlineUsers 获取在线用户列表
func (h *Hub) GetOnlineUsers() []uint {
	h.userMu.RLock()
	defer h.userMu.RUnlock()

	users := make([]uint, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	return users
}

// GetOnlineCount 获取在线人数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// runHeartbeat 运行心跳检测
func (h *Hub) runHeartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C

		data, err := EncodeEnvelope(EventPing, map[string]int64{"timestamp": time.Now().Unix()})
		if err != nil {
			continue
		}

		h.clientsMu.RLock()
		for _, client := range h.clients {
			select {
			case client.Send <- data:
			default:
			}
		}
		h.clientsMu.RUnlock()
	}
}

// Register 注册客户端（公开方法）
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
