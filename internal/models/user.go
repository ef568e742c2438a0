package models

import (
	"gorm.io/gorm"
)

// User 表示系統中的一個帳號
// AI 參與者也是一個普通的 User 列，以設定中的固定 ID 指定
type User struct {
	gorm.Model
	Username string   `gorm:"uniqueIndex;not null" json:"username"`
	Password string   `gorm:"not null" json:"-"` // bcrypt 雜湊，序列化時一律略過
	Role     UserRole `gorm:"not null" json:"role"`
}

// UserRole 定義用戶角色的類型
type UserRole string

const (
	RoleDebater  UserRole = "debater"  // 可加入正反方
	RoleAudience UserRole = "audience" // 只能旁觀
)
