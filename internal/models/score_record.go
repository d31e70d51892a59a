package models

// 对局模式
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// ScoreRecord 成绩记录表（只追加，不更新）
type ScoreRecord struct {
	BaseModel
	UserID     uint   `gorm:"index;not null" json:"user_id"`
	GameKey    string `gorm:"index;size:50;not null" json:"game_key"`
	Score      int64  `gorm:"not null" json:"score"`
	DurationMs int64  `gorm:"not null" json:"duration_ms"` // 最小为1，避免零时长记录
	Mode       string `gorm:"size:10;not null" json:"mode"`
	SessionID  string `gorm:"index;size:64" json:"session_id,omitempty"` // 多人对局关联的会话

	// 关联
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (ScoreRecord) TableName() string {
	return "score_records"
}
