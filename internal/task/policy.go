package task

import "time"

// RetryPolicy 定義某一種任務的重試上限與退避間隔
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// 各任務種類的名稱
// 對應的 payload 結構定義在 service 層
const (
	KindTurnAdvance        = "turn_advance"
	KindAITurn             = "ai_turn"
	KindEvaluate           = "evaluate"
	KindConnFinalize       = "conn_finalize"
	KindTerminationTimeout = "termination_timeout"
)

// DefaultPolicies 每種任務的預設重試策略
// 回合推進、斷線終局與協商逾時本身就是冪等的比較再行動操作，
// 失敗重送只會得到 noop，因此不做自動重試
var DefaultPolicies = map[string]RetryPolicy{
	KindTurnAdvance:        {MaxAttempts: 1},
	KindAITurn:             {MaxAttempts: 3, Backoff: 2 * time.Second},
	KindEvaluate:           {MaxAttempts: 3, Backoff: 3 * time.Second},
	KindConnFinalize:       {MaxAttempts: 1},
	KindTerminationTimeout: {MaxAttempts: 1},
}
