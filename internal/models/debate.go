package models

import (
	"time"

	"gorm.io/gorm"
)

// Debate 表示一場進行中的辯論場次
// 場次由 Room 擁有，Room.Status 才是生命週期的權威來源
// CurrentTurn 只能由回合狀態機、提前結束協商器與斷線調解器修改
type Debate struct {
	gorm.Model
	RoomID        uint `gorm:"uniqueIndex"`
	AffirmativeID uint
	NegativeID    uint
	CurrentTurn   int        // 1-based 回合索引，超過環節總數表示已結束
	TurnExpiresAt *time.Time // 當前回合的到期時間，結束後為 nil
}
