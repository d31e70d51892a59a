package websocket

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// 错误定义
var (
	ErrClientNotFound   = errors.New("客户端未找到")
	ErrUserNotConnected = errors.New("用户未连接")
	ErrSendBufferFull   = errors.New("发送缓冲区已满")
)

// 入站事件
const (
	// 大厅频道
	EventMatchRequest = "match_request"
	EventCancelMatch  = "cancel_match"

	// 会话频道
	EventJoinRoom    = "join_room"
	EventMakeMove    = "make_move"
	EventChatMessage = "chat_message"
	EventPlayerState = "player_state"
	EventGameOver    = "game_over"

	// 心跳
	EventPing = "ping"
	EventPong = "pong"
)

// 出站事件
const (
	// 大厅频道
	EventMatchFound     = "match_found"
	EventMatchError     = "match_error"
	EventQueueCancelled = "queue_cancelled"

	// 会话频道
	EventRoomUpdate    = "room_update"
	EventStateSnapshot = "state_snapshot"
	EventRoomError     = "room_error"
)

// MaxChatLength 聊天消息长度上限
const MaxChatLength = 200

// Envelope 消息信封，data按事件类型解释
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEnvelope 序列化出站消息
func EncodeEnvelope(event string, payload interface{}) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeEnvelope 解析入站消息，事件名不能为空
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		return nil, errors.New("事件名不能为空")
	}
	return &env, nil
}

// MatchRequestPayload 匹配请求
type MatchRequestPayload struct {
	GameKey string `json:"gameKey"`
	Mode    string `json:"mode"`
}

// DecodeMatchRequest 解析并校验匹配请求，只拒绝不纠正
func DecodeMatchRequest(data json.RawMessage) (*MatchRequestPayload, error) {
	var p MatchRequestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.GameKey == "" {
		return nil, errors.New("gameKey不能为空")
	}
	if p.Mode != "single" && p.Mode != "multi" {
		return nil, errors.New("mode必须是single或multi")
	}
	return &p, nil
}

// MovePayload 落子请求
type MovePayload struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

// DecodeMove 解析并校验落子请求，坐标缺失即拒绝
func DecodeMove(data json.RawMessage) (int, int, error) {
	var p MovePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, 0, err
	}
	if p.X == nil || p.Y == nil {
		return 0, 0, errors.New("缺少坐标")
	}
	return *p.X, *p.Y, nil
}

// ChatPayload 聊天请求
type ChatPayload struct {
	Message string `json:"message"`
}

// DecodeChat 解析并校验聊天消息：非空、长度封顶
//
// limit不大于0时使用默认上限。
func DecodeChat(data json.RawMessage, limit int) (string, error) {
	if limit <= 0 {
		limit = MaxChatLength
	}

	var p ChatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", err
	}
	msg := strings.TrimSpace(p.Message)
	if msg == "" {
		return "", errors.New("消息不能为空")
	}
	if len([]rune(msg)) > limit {
		return "", errors.New("消息过长")
	}
	return msg, nil
}

// GameOverReport 透传游戏的成绩上报（仅客户端可信路径）
type GameOverReport struct {
	GameKey    string `json:"gameKey"`
	Score      *int64 `json:"score"`
	DurationMs *int64 `json:"durationMs"`
	Mode       string `json:"mode,omitempty"`
}

// DecodeGameOverReport 解析并校验成绩上报
func DecodeGameOverReport(data json.RawMessage) (*GameOverReport, error) {
	var p GameOverReport
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.GameKey == "" {
		return nil, errors.New("gameKey不能为空")
	}
	if p.Score == nil || *p.Score < 0 {
		return nil, errors.New("score无效")
	}
	if p.DurationMs == nil || *p.DurationMs < 1 {
		return nil, errors.New("durationMs无效")
	}
	if p.Mode != "" && p.Mode != "single" && p.Mode != "multi" {
		return nil, errors.New("mode无效")
	}
	return &p, nil
}

// RoomUpdatePayload 会话成员通告
type RoomUpdatePayload struct {
	SessionID string       `json:"sessionId"`
	GameKey   string       `json:"gameKey"`
	Role      int          `json:"role"`
	Players   []RoomPlayer `json:"players"`
}

// RoomPlayer 会话成员
type RoomPlayer struct {
	ParticipantID uint `json:"participantId"`
	Role          int  `json:"role"`
}

// ChatBroadcast 服务端盖章后的聊天广播
type ChatBroadcast struct {
	From    string `json:"from"`
	Message string `json:"message"`
	At      int64  `json:"at"`
}

// NewChatBroadcast 构造聊天广播，身份与时间戳由服务端填写
func NewChatBroadcast(from, message string) ChatBroadcast {
	return ChatBroadcast{
		From:    from,
		Message: message,
		At:      time.Now().UnixMilli(),
	}
}

// ErrorPayload 错误通告
type ErrorPayload struct {
	Message string `json:"message"`
}
