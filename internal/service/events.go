package service

import (
	"fmt"
	"time"

	"debate_web/internal/models"
)

// 領域事件名稱
// 事件發布在房間或場次範圍的主題上，payload 形狀固定
const (
	EventDebateStarted   = "debate_started"
	EventTurnAdvanced    = "turn_advanced"
	EventDebateFinished  = "debate_finished"
	EventDebateMessage   = "debate_message_sent"
	EventDebateEvaluated = "debate_evaluated"

	EventTerminationRequested = "early_termination_requested"
	EventTerminationAgreed    = "early_termination_agreed"
	EventTerminationDeclined  = "early_termination_declined"
	EventTerminationExpired   = "early_termination_expired"

	EventUserLeftRoom    = "user_left_room"
	EventCreatorLeftRoom = "creator_left_room"
)

// Event 是一則待發布的領域事件
// 交易型操作只「暫存」事件，由呼叫者在提交之後才真正發布，
// 避免客戶端觀察到稍後被回滾的狀態
type Event struct {
	Topic   string      `json:"-"`
	Name    string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Publisher 將已提交的事件發布到廣播通道
type Publisher interface {
	Publish(events ...Event)
}

// RoomTopic 與 DebateTopic 組出事件主題名稱
func RoomTopic(roomID uint) string {
	return fmt.Sprintf("room:%d", roomID)
}

func DebateTopic(debateID uint) string {
	return fmt.Sprintf("debate:%d", debateID)
}

// TurnAdvancedPayload 回合推進事件的內容
type TurnAdvancedPayload struct {
	Turn      int         `json:"turn"`
	Name      string      `json:"name"`
	Side      models.Side `json:"side"`
	SpeakerID uint        `json:"speaker_id"`
	Duration  int         `json:"duration"`
	ExpiresAt time.Time   `json:"expires_at"`
	IsPrep    bool        `json:"is_prep"`
	IsQA      bool        `json:"is_qa"`
}

// MessagePayload 發言事件的內容
type MessagePayload struct {
	MessageID uint      `json:"message_id"`
	UserID    uint      `json:"user_id"`
	Content   string    `json:"content"`
	Turn      int       `json:"turn"`
	Timestamp time.Time `json:"timestamp"`
}

// TerminationPayload 提前結束協商事件的內容
type TerminationPayload struct {
	RequestedBy uint `json:"requested_by,omitempty"`
	RespondedBy uint `json:"responded_by,omitempty"`
}

// RoomMemberPayload 房間成員異動事件的內容
type RoomMemberPayload struct {
	UserID uint              `json:"user_id"`
	Status models.RoomStatus `json:"status"`
}

// EvaluatedPayload 評審完成事件的內容
type EvaluatedPayload struct {
	DebateID   uint          `json:"debate_id"`
	Winner     models.Winner `json:"winner"`
	Analyzable bool          `json:"analyzable"`
}
