package repository

import (
	"debate_web/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EvaluationRepository interface {
	// Upsert 以 DebateID 為鍵寫入評審結果，重試時覆寫既有列
	Upsert(evaluation *models.Evaluation) error
	FindByDebateID(debateID uint) (*models.Evaluation, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Upsert(evaluation *models.Evaluation) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "debate_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"winner", "analysis", "feedback_affirmative", "feedback_negative", "analyzable", "updated_at",
		}),
	}).Create(evaluation).Error
}

func (r *evaluationRepository) FindByDebateID(debateID uint) (*models.Evaluation, error) {
	var evaluation models.Evaluation
	err := r.db.Where("debate_id = ?", debateID).First(&evaluation).Error
	if err != nil {
		return nil, err
	}
	return &evaluation, nil
}
