package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户基础信息表
type User struct {
	BaseModel
	Username    string     `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Nickname    string     `gorm:"size:100" json:"nickname"`
	Email       string     `gorm:"uniqueIndex;size:100" json:"email"`
	Avatar      string     `gorm:"size:255" json:"avatar"`
	Status      string     `gorm:"size:20;default:'active'" json:"status"` // active, frozen, banned
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// TableName 指定User表名
func (User) TableName() string {
	return "users"
}

// BeforeCreate 创建前的钩子
func (u *User) BeforeCreate(tx *gorm.DB) error {
	// 设置默认昵称
	if u.Nickname == "" {
		u.Nickname = u.Username
	}
	// 设置默认状态
	if u.Status == "" {
		u.Status = "active"
	}
	return nil
}

// IsActive 检查用户是否激活
func (u *User) IsActive() bool {
	return u.Status == "active"
}
