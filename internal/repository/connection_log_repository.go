package repository

import (
	"errors"

	"debate_web/internal/models"

	"gorm.io/gorm"
)

type ConnectionLogRepository interface {
	Append(entry *models.ConnectionLog) error
	// Latest 取回 (user, context) 的最新一筆記錄，查無記錄時回傳 nil
	Latest(userID uint, ctxType models.ConnectionContext, ctxID uint) (*models.ConnectionLog, error)
}

type connectionLogRepository struct {
	db *gorm.DB
}

func NewConnectionLogRepository(db *gorm.DB) ConnectionLogRepository {
	return &connectionLogRepository{db: db}
}

func (r *connectionLogRepository) Append(entry *models.ConnectionLog) error {
	return r.db.Create(entry).Error
}

func (r *connectionLogRepository) Latest(userID uint, ctxType models.ConnectionContext, ctxID uint) (*models.ConnectionLog, error) {
	var entry models.ConnectionLog
	err := r.db.Where("user_id = ? AND context_type = ? AND context_id = ?", userID, ctxType, ctxID).
		Order("id desc").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
