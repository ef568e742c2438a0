package service

import (
	"errors"

	"debate_web/internal/models"
)

// formatTemplates 內建的命名賽制模板
// 環節列表一經解析即不可變，IsQA 是質詢環節唯一的判斷依據，
// 不允許用環節名稱做字串比對
var formatTemplates = map[string][]models.TurnDefinition{
	// 完整賽制：申論、質詢、準備時間與結辯
	"standard": {
		{Name: "賽前準備", Duration: 120, Side: models.SideNone, IsPrep: true},
		{Name: "正方一辯申論", Duration: 240, Side: models.SideAffirmative},
		{Name: "反方質詢正方", Duration: 120, Side: models.SideNegative, IsQA: true},
		{Name: "反方一辯申論", Duration: 240, Side: models.SideNegative},
		{Name: "正方質詢反方", Duration: 120, Side: models.SideAffirmative, IsQA: true},
		{Name: "中場準備", Duration: 90, Side: models.SideNone, IsPrep: true},
		{Name: "正方二辯駁論", Duration: 180, Side: models.SideAffirmative},
		{Name: "反方二辯駁論", Duration: 180, Side: models.SideNegative},
		{Name: "反方質詢正方", Duration: 120, Side: models.SideNegative, IsQA: true},
		{Name: "正方質詢反方", Duration: 120, Side: models.SideAffirmative, IsQA: true},
		{Name: "自由辯論", Duration: 300, Side: models.SideAffirmative, IsQA: true},
		{Name: "賽末準備", Duration: 90, Side: models.SideNone, IsPrep: true},
		{Name: "反方結辯", Duration: 240, Side: models.SideNegative},
		{Name: "正方結辯", Duration: 240, Side: models.SideAffirmative},
		{Name: "評審講評時間", Duration: 60, Side: models.SideNone, IsPrep: true},
	},
	// 快速賽制：純申論交替
	"quick": {
		{Name: "正方申論", Duration: 180, Side: models.SideAffirmative},
		{Name: "反方申論", Duration: 180, Side: models.SideNegative},
		{Name: "正方駁論", Duration: 120, Side: models.SideAffirmative},
		{Name: "反方駁論", Duration: 120, Side: models.SideNegative},
		{Name: "正方結辯", Duration: 120, Side: models.SideAffirmative},
		{Name: "反方結辯", Duration: 120, Side: models.SideNegative},
	},
}

var (
	ErrUnknownFormat = errors.New("未知的賽制模板")
	ErrInvalidFormat = errors.New("無效的賽制定義")
)

// FormatService 解析房間的發言順序
type FormatService struct{}

func NewFormatService() *FormatService {
	return &FormatService{}
}

// Resolve 回傳房間的有序環節列表
// 自訂列表優先於命名模板，回傳的 slice 是副本，呼叫者不得修改原始定義
func (s *FormatService) Resolve(room *models.Room) ([]models.TurnDefinition, error) {
	var turns []models.TurnDefinition
	if len(room.CustomTurns) > 0 {
		turns = room.CustomTurns
	} else {
		template, ok := formatTemplates[room.FormatName]
		if !ok {
			return nil, ErrUnknownFormat
		}
		turns = template
	}

	for _, turn := range turns {
		if turn.Duration <= 0 {
			return nil, ErrInvalidFormat
		}
		if !turn.IsPrep && turn.Side != models.SideAffirmative && turn.Side != models.SideNegative {
			return nil, ErrInvalidFormat
		}
	}

	out := make([]models.TurnDefinition, len(turns))
	copy(out, turns)
	return out, nil
}

// Turn 取回指定索引（1-based）的環節定義，超出範圍回傳 false
func (s *FormatService) Turn(room *models.Room, index int) (models.TurnDefinition, bool, error) {
	turns, err := s.Resolve(room)
	if err != nil {
		return models.TurnDefinition{}, false, err
	}
	if index < 1 || index > len(turns) {
		return models.TurnDefinition{}, false, nil
	}
	return turns[index-1], true, nil
}
