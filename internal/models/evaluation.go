package models

import (
	"gorm.io/gorm"
)

// Winner 定義評審結果的勝方
type Winner string

const (
	WinnerAffirmative Winner = "affirmative"
	WinnerNegative    Winner = "negative"
	WinnerNone        Winner = "none"
)

// Evaluation 表示一場辯論的評審結果
// 每個場次最多存在一筆，重試時以 DebateID 為鍵覆寫
type Evaluation struct {
	gorm.Model
	DebateID            uint `gorm:"uniqueIndex"`
	Winner              Winner
	Analysis            string `gorm:"type:text"`
	FeedbackAffirmative string `gorm:"type:text"`
	FeedbackNegative    string `gorm:"type:text"`
	Analyzable          bool
}
