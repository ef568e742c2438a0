package repository

import (
	"debate_web/internal/storage"

	"gorm.io/gorm"
)

// Repositories 聚合所有資料存取層
type Repositories struct {
	User          UserRepository
	Room          RoomRepository
	Debate        DebateRepository
	Message       MessageRepository
	Evaluation    EvaluationRepository
	ConnectionLog ConnectionLogRepository

	db *gorm.DB
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return newRepositories(db.DB)
}

func newRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Room:          NewRoomRepository(db),
		Debate:        NewDebateRepository(db),
		Message:       NewMessageRepository(db),
		Evaluation:    NewEvaluationRepository(db),
		ConnectionLog: NewConnectionLogRepository(db),
		db:            db,
	}
}

// WithTx 在單一資料庫交易中執行 fn，fn 收到綁定該交易的 Repositories
// 核心操作（回合推進、提前結束、斷線終局）都必須走這裡，
// 確保「讀取-比較-寫入」對同一場次是原子的
func (r *Repositories) WithTx(fn func(txRepos *Repositories) error) error {
	if r.db == nil {
		// 測試替身沒有底層資料庫時直接執行
		return fn(r)
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(newRepositories(tx))
	})
}
