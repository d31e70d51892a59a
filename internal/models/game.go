package models

// Game 游戏目录表
type Game struct {
	BaseModel
	Key         string  `gorm:"uniqueIndex;size:50;not null" json:"key"` // snake, tetris, mario, tictactoe
	Name        string  `gorm:"size:100;not null" json:"name"`
	Description string  `gorm:"size:500" json:"description"`
	Genre       string  `gorm:"size:50" json:"genre"`
	Icon        string  `gorm:"size:255" json:"icon"`
	Status      string  `gorm:"size:20;default:'active'" json:"status"` // active, maintenance, disabled
	MaxPlayers  int     `gorm:"default:2" json:"max_players"`
	Realtime    bool    `gorm:"default:false" json:"realtime"` // 是否有服务端状态机
	SortOrder   int     `gorm:"default:0" json:"sort_order"`
	Config      JSONMap `gorm:"type:json" json:"config"`
}

// TableName 指定表名
func (Game) TableName() string {
	return "games"
}

// IsActive 检查游戏是否开放
func (g *Game) IsActive() bool {
	return g.Status == "active"
}
