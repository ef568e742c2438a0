package models

import (
	"time"

	"gorm.io/gorm"
)

// DebateMessage 表示一條辯論發言，只增不改
// Turn 記錄這條發言屬於第幾個環節
type DebateMessage struct {
	gorm.Model
	DebateID  uint `gorm:"index"`
	UserID    uint
	Content   string `gorm:"type:text"`
	Turn      int
	Timestamp time.Time
}

// NewDebateMessage 創建一條新的辯論發言
func NewDebateMessage(debateID, userID uint, content string, turn int) *DebateMessage {
	return &DebateMessage{
		DebateID:  debateID,
		UserID:    userID,
		Content:   content,
		Turn:      turn,
		Timestamp: time.Now(),
	}
}
