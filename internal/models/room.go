package models

import (
	"gorm.io/gorm"
)

// Room 表示一個辯論房間
// 房間擁有辯論場次（Debate），其狀態是整場辯論生命週期的唯一來源
type Room struct {
	gorm.Model
	Name          string
	Description   string
	Status        RoomStatus
	CreatorID     uint             // 建立房間的用戶，離開時房間直接終止
	AffirmativeID uint             // 正方用戶 ID，0 表示尚未有人加入
	NegativeID    uint             // 反方用戶 ID
	FormatName    string           // 命名賽制模板，與 CustomTurns 擇一
	CustomTurns   []TurnDefinition `gorm:"serializer:json"` // 自訂發言順序列表
	IsAIRoom      bool             // 是否為 AI 對戰房間（反方由 AI 擔任）
	Spectators    []uint           `gorm:"serializer:json"` // 觀眾的用戶 ID 列表
}

// RoomStatus 定義房間狀態的類型
type RoomStatus string

const (
	RoomStatusWaiting    RoomStatus = "waiting"
	RoomStatusReady      RoomStatus = "ready"
	RoomStatusDebating   RoomStatus = "debating"
	RoomStatusFinished   RoomStatus = "finished"
	RoomStatusTerminated RoomStatus = "terminated"
	RoomStatusDeleted    RoomStatus = "deleted"
)

// IsTerminal 回報狀態是否已進入終端集合
// 終端狀態之後不允許任何轉移
func (s RoomStatus) IsTerminal() bool {
	switch s {
	case RoomStatusFinished, RoomStatusTerminated, RoomStatusDeleted:
		return true
	}
	return false
}

// Side 定義辯論立場
type Side string

const (
	SideAffirmative Side = "affirmative" // 正方
	SideNegative    Side = "negative"    // 反方
	SideNone        Side = "none"        // 不屬於任一方（準備時間等）
)

// ParticipantID 回傳指定立場的用戶 ID，0 表示該立場無人
func (r *Room) ParticipantID(side Side) uint {
	switch side {
	case SideAffirmative:
		return r.AffirmativeID
	case SideNegative:
		return r.NegativeID
	}
	return 0
}

// IsParticipant 檢查用戶是否為正反方之一
func (r *Room) IsParticipant(userID uint) bool {
	return userID != 0 && (userID == r.AffirmativeID || userID == r.NegativeID)
}
