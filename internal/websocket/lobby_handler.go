package websocket

import (
	"context"
	"encoding/json"

	apperrors "github.com/wfunc/arcade-server/internal/errors"
	"github.com/wfunc/arcade-server/internal/logger"
	"github.com/wfunc/arcade-server/internal/matchmaking"
	"go.uber.org/zap"
)

// LobbyHandler 大厅频道事件处理器
//
// 入站事件按事件名查表分发。
type LobbyHandler struct {
	hub      *Hub
	queue    *matchmaking.Queue
	log      *zap.Logger
	handlers map[string]func(*Client, json.RawMessage)
}

// NewLobbyHandler 创建大厅处理器
func NewLobbyHandler(hub *Hub, queue *matchmaking.Queue) *LobbyHandler {
	h := &LobbyHandler{
		hub:   hub,
		queue: queue,
		log:   logger.GetModuleLogger("websocket"),
	}
	h.handlers = map[string]func(*Client, json.RawMessage){
		EventMatchRequest: h.handleMatchRequest,
		EventCancelMatch:  h.handleCancelMatch,
		EventPong:         func(*Client, json.RawMessage) {},
	}
	return h
}

// HandleMessage 处理大厅入站消息
func (h *LobbyHandler) HandleMessage(client *Client, data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		h.log.Warn("大厅消息解析失败",
			zap.String("client_id", client.ID),
			zap.Error(err))
		client.SendError(EventMatchError, "消息格式错误")
		return
	}

	handler, ok := h.handlers[env.Event]
	if !ok {
		h.log.Warn("大厅收到未知事件",
			zap.String("client_id", client.ID),
			zap.String("event", env.Event))
		client.SendError(EventMatchError, "未知的事件类型: "+env.Event)
		return
	}

	handler(client, env.Data)
}

// HandleDisconnect 断开清理：排队中的玩家不能无限期占位
func (h *LobbyHandler) HandleDisconnect(client *Client) {
	if removed := h.queue.DequeueAll(client.UserID); removed > 0 {
		h.log.Info("断线玩家已出队",
			zap.Uint("user_id", client.UserID),
			zap.Int("removed", removed))
	}
}

// handleMatchRequest 匹配请求
func (h *LobbyHandler) handleMatchRequest(client *Client, data json.RawMessage) {
	payload, err := DecodeMatchRequest(data)
	if err != nil {
		client.SendError(EventMatchError, err.Error())
		return
	}

	session, err := h.queue.Enqueue(context.Background(), payload.GameKey, payload.Mode, client.UserID)
	if err != nil {
		client.SendError(EventMatchError, errorMessage(err))
		return
	}

	if session == nil {
		// 进入等待，配对成功时再通知
		return
	}

	// 广播给整个大厅，客户端按参与者身份过滤
	h.hub.BroadcastToChannel(ChannelLobby, EventMatchFound, session)
}

// handleCancelMatch 取消匹配
func (h *LobbyHandler) handleCancelMatch(client *Client, _ json.RawMessage) {
	h.queue.DequeueAll(client.UserID)
	client.SendEvent(EventQueueCancelled, nil)
}

// errorMessage 提取对用户可见的错误文案
func errorMessage(err error) string {
	if appErr, ok := err.(*apperrors.AppError); ok {
		return appErr.Message
	}
	return err.Error()
}
