package repository

import (
	"debate_web/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DebateRepository interface {
	Create(debate *models.Debate) error
	FindByID(id uint) (*models.Debate, error)
	// FindByIDForUpdate 以 FOR UPDATE 鎖定場次列，必須在交易內呼叫
	FindByIDForUpdate(id uint) (*models.Debate, error)
	FindByRoomID(roomID uint) (*models.Debate, error)
	Update(debate *models.Debate) error
}

type debateRepository struct {
	db *gorm.DB
}

func NewDebateRepository(db *gorm.DB) DebateRepository {
	return &debateRepository{db: db}
}

func (r *debateRepository) Create(debate *models.Debate) error {
	return r.db.Create(debate).Error
}

func (r *debateRepository) FindByID(id uint) (*models.Debate, error) {
	var debate models.Debate
	err := r.db.First(&debate, id).Error
	if err != nil {
		return nil, err
	}
	return &debate, nil
}

func (r *debateRepository) FindByIDForUpdate(id uint) (*models.Debate, error) {
	var debate models.Debate
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&debate, id).Error
	if err != nil {
		return nil, err
	}
	return &debate, nil
}

// FindByRoomID 由房間反查場次，僅供唯讀查詢使用
func (r *debateRepository) FindByRoomID(roomID uint) (*models.Debate, error) {
	var debate models.Debate
	err := r.db.Where("room_id = ?", roomID).First(&debate).Error
	if err != nil {
		return nil, err
	}
	return &debate, nil
}

func (r *debateRepository) Update(debate *models.Debate) error {
	return r.db.Save(debate).Error
}
