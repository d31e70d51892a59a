package websocket

import (
	"context"
	"encoding/json"

	apperrors "github.com/wfunc/arcade-server/internal/errors"
	"github.com/wfunc/arcade-server/internal/game"
	"github.com/wfunc/arcade-server/internal/logger"
	"github.com/wfunc/arcade-server/internal/models"
	"github.com/wfunc/arcade-server/internal/repository"
	"go.uber.org/zap"
)

// SessionHandler 会话频道事件处理器
//
// 有服务端状态机的游戏走Registry裁决；没有的走透传路径，
// 服务端不校验也不保存局面（最低信任路径）。
type SessionHandler struct {
	hub         *Hub
	registry    *game.Registry
	sessionRepo repository.MatchSessionRepository
	scoreRepo   repository.ScoreRecordRepository
	maxChat     int
	log         *zap.Logger
	handlers    map[string]func(*Client, json.RawMessage)
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(
	hub *Hub,
	registry *game.Registry,
	sessionRepo repository.MatchSessionRepository,
	scoreRepo repository.ScoreRecordRepository,
	maxChat int,
) *SessionHandler {
	h := &SessionHandler{
		hub:         hub,
		registry:    registry,
		sessionRepo: sessionRepo,
		scoreRepo:   scoreRepo,
		maxChat:     maxChat,
		log:         logger.GetModuleLogger("websocket"),
	}
	h.handlers = map[string]func(*Client, json.RawMessage){
		EventJoinRoom:    h.handleJoinRoom,
		EventMakeMove:    h.handleMakeMove,
		EventChatMessage: h.handleChat,
		EventPlayerState: h.handlePlayerState,
		EventGameOver:    h.handleGameOver,
		EventPong:        func(*Client, json.RawMessage) {},
	}
	return h
}

// HandleMessage 处理会话入站消息
func (h *SessionHandler) HandleMessage(client *Client, data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		h.log.Warn("会话消息解析失败",
			zap.String("client_id", client.ID),
			zap.Error(err))
		client.SendError(EventRoomError, "消息格式错误")
		return
	}

	handler, ok := h.handlers[env.Event]
	if !ok {
		h.log.Warn("会话收到未知事件",
			zap.String("client_id", client.ID),
			zap.String("event", env.Event))
		client.SendError(EventRoomError, "未知的事件类型: "+env.Event)
		return
	}

	handler(client, env.Data)
}

// HandleDisconnect 断开清理：判负与驱逐由Registry处理
func (h *SessionHandler) HandleDisconnect(client *Client) {
	h.registry.Detach(context.Background(), client.SessionID(), client.UserID, client.ID)
}

// handleJoinRoom 加入会话
func (h *SessionHandler) handleJoinRoom(client *Client, _ json.RawMessage) {
	ctx := context.Background()
	sessionID := client.SessionID()

	info, err := h.registry.Attach(ctx, sessionID, client.UserID, client.ID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNoRealtimeEngine) {
			h.joinPassthrough(ctx, client, sessionID)
			return
		}
		client.SendError(EventRoomError, errorMessage(err))
		return
	}

	update := RoomUpdatePayload{
		SessionID: info.SessionID,
		GameKey:   info.GameKey,
		Role:      info.Role,
		Players:   toRoomPlayers(info.Players),
	}
	client.SendEvent(EventRoomUpdate, update)
	h.hub.BroadcastToChannelExcept(client.Channel, client.ID, EventRoomUpdate, update)

	// 当前局面私发给加入者，开局广播由Registry负责
	if !info.Activated {
		client.SendEvent(EventStateSnapshot, info.State)
	}
}

// joinPassthrough 透传游戏的加入路径
func (h *SessionHandler) joinPassthrough(ctx context.Context, client *Client, sessionID string) {
	record, err := h.sessionRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		client.SendError(EventRoomError, "会话不存在")
		return
	}

	update := RoomUpdatePayload{
		SessionID: record.SessionID,
		GameKey:   record.GameKey,
		Role:      record.PlayerRole(client.UserID),
		Players:   toRoomPlayers(record.Players),
	}
	client.SendEvent(EventRoomUpdate, update)
	h.hub.BroadcastToChannelExcept(client.Channel, client.ID, EventRoomUpdate, update)
}

// handleMakeMove 落子，拒绝只私发给调用方
func (h *SessionHandler) handleMakeMove(client *Client, data json.RawMessage) {
	x, y, err := DecodeMove(data)
	if err != nil {
		client.SendError(EventRoomError, err.Error())
		return
	}

	if err := h.registry.HandleMove(context.Background(), client.SessionID(), client.UserID, x, y); err != nil {
		client.SendError(EventRoomError, errorMessage(err))
	}
}

// handleChat 聊天，身份与时间戳由服务端盖章
func (h *SessionHandler) handleChat(client *Client, data json.RawMessage) {
	msg, err := DecodeChat(data, h.maxChat)
	if err != nil {
		client.SendError(EventRoomError, err.Error())
		return
	}

	h.hub.BroadcastToChannel(client.Channel, EventChatMessage, NewChatBroadcast(client.Username, msg))
}

// handlePlayerState 透传局面中继，原样转发给频道内其他连接
func (h *SessionHandler) handlePlayerState(client *Client, data json.RawMessage) {
	if h.isEngineSession(client.SessionID()) {
		client.SendError(EventRoomError, "该游戏由服务端裁决，不支持透传")
		return
	}

	h.hub.BroadcastToChannelExcept(client.Channel, client.ID, EventPlayerState, data)
}

// handleGameOver 透传游戏的成绩上报，直接产生一条上报者的成绩记录
func (h *SessionHandler) handleGameOver(client *Client, data json.RawMessage) {
	sessionID := client.SessionID()
	if h.isEngineSession(sessionID) {
		client.SendError(EventRoomError, "该游戏由服务端结算")
		return
	}

	report, err := DecodeGameOverReport(data)
	if err != nil {
		client.SendError(EventRoomError, err.Error())
		return
	}

	mode := report.Mode
	if mode == "" {
		mode = models.ModeMulti
	}

	record := &models.ScoreRecord{
		UserID:     client.UserID,
		GameKey:    report.GameKey,
		Score:      *report.Score,
		DurationMs: *report.DurationMs,
		Mode:       mode,
		SessionID:  sessionID,
	}
	if err := h.scoreRepo.Create(context.Background(), record); err != nil {
		// 持久化失败只记日志，对局继续
		h.log.Error("透传成绩落库失败",
			zap.String("session_id", sessionID),
			zap.Uint("user_id", client.UserID),
			zap.Error(err))
	}

	h.hub.BroadcastToChannelExcept(client.Channel, client.ID, EventGameOver, data)
}

// isEngineSession 会话对应的游戏是否由服务端状态机裁决
func (h *SessionHandler) isEngineSession(sessionID string) bool {
	if live, ok := h.registry.Resident(sessionID); ok && live != nil {
		return true
	}

	record, err := h.sessionRepo.FindBySessionID(context.Background(), sessionID)
	if err != nil {
		return false
	}
	return game.HasEngine(record.GameKey)
}

// toRoomPlayers 转换参与者列表
func toRoomPlayers(players models.MatchPlayers) []RoomPlayer {
	out := make([]RoomPlayer, 0, len(players))
	for _, p := range players {
		out = append(out, RoomPlayer{ParticipantID: p.UserID, Role: p.Role})
	}
	return out
}
