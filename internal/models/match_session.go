package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// 会话状态（单调推进：waiting -> active -> finished）
const (
	SessionStatusWaiting  = "waiting"
	SessionStatusActive   = "active"
	SessionStatusFinished = "finished"
)

// MatchPlayer 会话参与者（角色按配对顺序分配：先到者0，后到者1）
type MatchPlayer struct {
	UserID uint `json:"user_id"`
	Role   int  `json:"role"`
}

// MatchPlayers 参与者列表（JSON列）
type MatchPlayers []MatchPlayer

// Value 实现 driver.Valuer 接口
func (p MatchPlayers) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan 实现 sql.Scanner 接口
func (p *MatchPlayers) Scan(value interface{}) error {
	if value == nil {
		*p = MatchPlayers{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		strVal, ok := value.(string)
		if !ok {
			return nil
		}
		bytes = []byte(strVal)
	}
	return json.Unmarshal(bytes, p)
}

// MatchSession 对战会话表（持久化的Session记录）
type MatchSession struct {
	BaseModel
	SessionID  string       `gorm:"uniqueIndex;size:64;not null" json:"session_id"`
	GameKey    string       `gorm:"index;size:50;not null" json:"game_key"`
	Status     string       `gorm:"index;size:20;default:'waiting'" json:"status"`
	Players    MatchPlayers `gorm:"type:json" json:"players"`
	Snapshot   string       `gorm:"type:text" json:"snapshot,omitempty"` // 序列化的游戏状态（恢复源）
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// TableName 指定表名
func (MatchSession) TableName() string {
	return "match_sessions"
}

// PlayerRole 查找参与者的角色，非参与者返回 -1
func (s *MatchSession) PlayerRole(userID uint) int {
	for _, p := range s.Players {
		if p.UserID == userID {
			return p.Role
		}
	}
	return -1
}

// IsFinished 检查会话是否已结束
func (s *MatchSession) IsFinished() bool {
	return s.Status == SessionStatusFinished
}
