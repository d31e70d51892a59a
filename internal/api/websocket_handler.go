package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/arcade-server/internal/config"
	"github.com/wfunc/arcade-server/internal/middleware"
	ws "github.com/wfunc/arcade-server/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket接入处理器
//
// 大厅与会话是两类独立的连接，各挂各的频道处理器。
type WebSocketHandler struct {
	hub            *ws.Hub
	lobbyHandler   *ws.LobbyHandler
	sessionHandler *ws.SessionHandler
	upgrader       websocket.Upgrader
	logger         *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(
	hub *ws.Hub,
	lobbyHandler *ws.LobbyHandler,
	sessionHandler *ws.SessionHandler,
	wsCfg *config.WebSocketConfig,
	logger *zap.Logger,
) *WebSocketHandler {
	readBuf := wsCfg.ReadBufferSize
	writeBuf := wsCfg.WriteBufferSize
	if readBuf <= 0 {
		readBuf = 1024
	}
	if writeBuf <= 0 {
		writeBuf = 1024
	}

	return &WebSocketHandler{
		hub:            hub,
		lobbyHandler:   lobbyHandler,
		sessionHandler: sessionHandler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    readBuf,
			WriteBufferSize:   writeBuf,
			EnableCompression: wsCfg.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				// 在生产环境中应该检查Origin
				return true
			},
		},
		logger: logger,
	}
}

// LobbyWebSocket 大厅WebSocket连接
func (h *WebSocketHandler) LobbyWebSocket(c *gin.Context) {
	userID, username, ok := h.identity(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.Uint("user_id", userID),
			zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, userID, username, ws.ChannelLobby, h.lobbyHandler)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("大厅连接建立",
		zap.String("client_id", client.ID),
		zap.Uint("user_id", userID))
}

// GameWebSocket 会话WebSocket连接
//
// 连接建立即入频道，此后的开局广播不会漏发给这条连接。
// 会话是否存在由join_room时裁决。
func (h *WebSocketHandler) GameWebSocket(c *gin.Context) {
	userID, username, ok := h.identity(c)
	if !ok {
		return
	}

	sessionID := c.Param("sessionId")
	if sessionID == "" {
		c.JSON(400, gin.H{"error": "缺少会话ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.Uint("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, userID, username, ws.SessionChannel(sessionID), h.sessionHandler)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("会话连接建立",
		zap.String("client_id", client.ID),
		zap.Uint("user_id", userID),
		zap.String("session_id", sessionID))
}

// identity 从认证上下文取出用户身份
func (h *WebSocketHandler) identity(c *gin.Context) (uint, string, bool) {
	userID, exists := middleware.GetUserID(c)
	if !exists || userID == 0 {
		c.JSON(401, gin.H{"error": "未登录"})
		return 0, "", false
	}
	username, _ := middleware.GetUsername(c)
	return userID, username, true
}
