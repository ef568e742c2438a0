package repository

import (
	"debate_web/internal/models"

	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(message *models.DebateMessage) error
	FindByDebateID(debateID uint) ([]models.DebateMessage, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(message *models.DebateMessage) error {
	return r.db.Create(message).Error
}

// FindByDebateID 依環節與時間順序取回完整逐字稿
func (r *messageRepository) FindByDebateID(debateID uint) ([]models.DebateMessage, error) {
	var messages []models.DebateMessage
	err := r.db.Where("debate_id = ?", debateID).Order("turn asc, id asc").Find(&messages).Error
	return messages, err
}
