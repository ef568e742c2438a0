package models

// TurnDefinition 表示發言順序中的一個環節
// 這是不可變的值物件，只有自訂賽制才會持久化到 Room 上
type TurnDefinition struct {
	Name     string `json:"name"`
	Duration int    `json:"duration"` // 持續時間（秒）
	Side     Side   `json:"side"`
	IsPrep   bool   `json:"is_prep"` // 準備時間，雙方皆不發言
	IsQA     bool   `json:"is_qa"`   // 質詢環節，雙方皆可發言
}

// SpeakerID 回傳這個環節中預期發言者的用戶 ID
// 準備時間回傳 0
func (t TurnDefinition) SpeakerID(room *Room) uint {
	if t.IsPrep {
		return 0
	}
	return room.ParticipantID(t.Side)
}
