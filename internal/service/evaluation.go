package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"debate_web/internal/ai"
	"debate_web/internal/models"
	"debate_web/internal/repository"
	"debate_web/internal/task"
)

// 評審服務完全失敗時寫入的替代內容
const (
	fallbackAnalysis = "本場辯論暫時無法取得 AI 評審結果。"
	fallbackFeedback = "評審服務目前無法使用，未能提供個別回饋。"
)

// EvaluationService 在場次到達終局後產生唯一一筆評審結果
type EvaluationService struct {
	repos     *repository.Repositories
	format    *FormatService
	judge     ai.Judge
	publisher Publisher
	retry     task.RetryPolicy
	logger    *zap.Logger
}

func NewEvaluationService(repos *repository.Repositories, format *FormatService, judge ai.Judge, publisher Publisher, logger *zap.Logger) *EvaluationService {
	return &EvaluationService{
		repos:     repos,
		format:    format,
		judge:     judge,
		publisher: publisher,
		retry:     task.DefaultPolicies[task.KindEvaluate],
		logger:    logger,
	}
}

// HandleEvaluateTask 是 evaluate 任務的進入點
// 以 DebateID 為鍵覆寫，重複投遞與重試最終都只留下一筆結果
func (s *EvaluationService) HandleEvaluateTask(ctx context.Context, debateID uint) error {
	debate, err := s.repos.Debate.FindByID(debateID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn("evaluate for missing debate", zap.Uint("debate_id", debateID))
		return nil
	}
	if err != nil {
		return err
	}
	room, err := s.repos.Room.FindByID(debate.RoomID)
	if err != nil {
		return err
	}
	if !room.Status.IsTerminal() {
		s.logger.Debug("evaluate before terminal status, dropped",
			zap.Uint("debate_id", debateID), zap.String("status", string(room.Status)))
		return nil
	}

	verdict, judgeErr := s.judgeWithRetry(ctx, room, debate)
	evaluation := &models.Evaluation{DebateID: debate.ID}
	if judgeErr != nil {
		// 評審澈底失敗：寫入固定的替代結果，事件照常發出，下游不會永遠等待
		s.logger.Error("judge exhausted retries, writing fallback evaluation",
			zap.Uint("debate_id", debate.ID), zap.Error(judgeErr))
		evaluation.Winner = models.WinnerNone
		evaluation.Analysis = fallbackAnalysis
		evaluation.FeedbackAffirmative = fallbackFeedback
		evaluation.FeedbackNegative = fallbackFeedback
		evaluation.Analyzable = false
	} else {
		evaluation.Winner = normalizeWinner(verdict.Winner)
		evaluation.Analysis = verdict.Analysis
		if verdict.Reason != "" {
			evaluation.Analysis = verdict.Analysis + "\n\n" + verdict.Reason
		}
		evaluation.FeedbackAffirmative = verdict.FeedbackAffirmative
		evaluation.FeedbackNegative = verdict.FeedbackNegative
		evaluation.Analyzable = verdict.Analyzable
	}

	if err := s.repos.Evaluation.Upsert(evaluation); err != nil {
		return err
	}

	// 事件在寫入成功之後才發布
	payload := EvaluatedPayload{DebateID: debate.ID, Winner: evaluation.Winner, Analyzable: evaluation.Analyzable}
	s.publisher.Publish(
		Event{Topic: DebateTopic(debate.ID), Name: EventDebateEvaluated, Payload: payload},
		Event{Topic: RoomTopic(room.ID), Name: EventDebateEvaluated, Payload: payload},
	)
	return nil
}

func (s *EvaluationService) GetEvaluation(debateID uint) (*models.Evaluation, error) {
	return s.repos.Evaluation.FindByDebateID(debateID)
}

func (s *EvaluationService) judgeWithRetry(ctx context.Context, room *models.Room, debate *models.Debate) (*ai.Verdict, error) {
	messages, err := s.repos.Message.FindByDebateID(debate.ID)
	if err != nil {
		return nil, err
	}
	turns, err := s.format.Resolve(room)
	if err != nil {
		return nil, err
	}
	transcript := buildTranscript(messages, turns, debate.AffirmativeID)

	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			s.logger.Warn("retrying evaluation",
				zap.Uint("debate_id", debate.ID), zap.Int("attempt", attempt))
			time.Sleep(s.retry.Backoff)
		}
		verdict, err := s.judge.Evaluate(ctx, room.Name, transcript)
		if err == nil {
			return verdict, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func normalizeWinner(w string) models.Winner {
	switch models.Winner(w) {
	case models.WinnerAffirmative, models.WinnerNegative:
		return models.Winner(w)
	}
	return models.WinnerNone
}
