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

// aiFallbackMessage 重試耗盡後代替 AI 真正發言的內容
const aiFallbackMessage = "（AI 辯手暫時無法回應，請稍候或由對方手動結束此環節）"

// AIPlayerService 決定 AI 參與者何時發言
// 每次回合推進都會被觸發一次，是否接手由它自行判斷
type AIPlayerService struct {
	repos     *repository.Repositories
	format    *FormatService
	debates   *DebateService
	generator ai.Generator
	scheduler task.Scheduler
	publisher Publisher
	aiUserID  uint
	pause     time.Duration
	retry     task.RetryPolicy
	logger    *zap.Logger
}

func NewAIPlayerService(repos *repository.Repositories, format *FormatService, debates *DebateService, generator ai.Generator, scheduler task.Scheduler, publisher Publisher, aiUserID uint, pause time.Duration, logger *zap.Logger) *AIPlayerService {
	return &AIPlayerService{
		repos:     repos,
		format:    format,
		debates:   debates,
		generator: generator,
		scheduler: scheduler,
		publisher: publisher,
		aiUserID:  aiUserID,
		pause:     pause,
		retry:     task.DefaultPolicies[task.KindAITurn],
		logger:    logger,
	}
}

// HandleAITurnTask 是 ai_turn 任務的進入點
// 所有過期條件（場次已推進、房間已離開 debating）都收斂為 noop
func (s *AIPlayerService) HandleAITurnTask(ctx context.Context, payload aiTurnPayload) error {
	debate, err := s.repos.Debate.FindByID(payload.DebateID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn("ai turn for missing debate", zap.Uint("debate_id", payload.DebateID))
		return nil
	}
	if err != nil {
		return err
	}
	room, err := s.repos.Room.FindByID(debate.RoomID)
	if err != nil {
		return err
	}

	if !room.IsAIRoom || room.Status != models.RoomStatusDebating {
		return nil
	}
	if debate.CurrentTurn != payload.Turn {
		s.logger.Debug("stale ai turn dropped",
			zap.Uint("debate_id", debate.ID),
			zap.Int("scheduled", payload.Turn),
			zap.Int("current", debate.CurrentTurn))
		return nil
	}

	turn, ok, err := s.format.Turn(room, debate.CurrentTurn)
	if err != nil || !ok {
		return err
	}

	switch {
	case turn.IsPrep:
		// 準備時間雙方都不發言
		return nil
	case turn.IsQA:
		// 質詢環節只回應人類發言的觸發，回合推進本身不觸發 AI
		if !payload.Reply {
			return nil
		}
	default:
		if turn.SpeakerID(room) != s.aiUserID {
			return nil
		}
	}

	content, genErr := s.generate(ctx, room, debate, turn.Name)
	if genErr != nil {
		// 重試耗盡：張貼替代訊息，場次停在原回合等待人工處理
		s.logger.Error("ai generation exhausted retries",
			zap.Uint("debate_id", debate.ID), zap.Int("turn", debate.CurrentTurn), zap.Error(genErr))
		content = aiFallbackMessage
	}

	message := models.NewDebateMessage(debate.ID, s.aiUserID, content, debate.CurrentTurn)
	if err := s.repos.Message.Create(message); err != nil {
		return err
	}
	s.publisher.Publish(Event{Topic: DebateTopic(debate.ID), Name: EventDebateMessage, Payload: MessagePayload{
		MessageID: message.ID,
		UserID:    s.aiUserID,
		Content:   content,
		Turn:      message.Turn,
		Timestamp: message.Timestamp,
	}})

	if genErr != nil || turn.IsQA {
		// 失敗路徑不自動推進；質詢環節讓雙方在同一環節內繼續交鋒
		return nil
	}

	// 停頓片刻再交棒，expectedTurn 帶當前回合，與自然到期的計時器互相收斂
	err = s.scheduler.Schedule(ctx, task.KindTurnAdvance,
		turnAdvancePayload{DebateID: debate.ID, ExpectedTurn: debate.CurrentTurn}, s.pause)
	if err != nil {
		s.logger.Error("schedule ai handoff failed", zap.Uint("debate_id", debate.ID), zap.Error(err))
	}
	return nil
}

// generate 呼叫生成服務，失敗時以固定退避重試到上限
func (s *AIPlayerService) generate(ctx context.Context, room *models.Room, debate *models.Debate, turnName string) (string, error) {
	transcript, err := s.transcript(room, debate)
	if err != nil {
		return "", err
	}
	req := ai.GenerateRequest{
		Topic:      room.Name,
		Side:       string(models.SideNegative),
		TurnName:   turnName,
		Transcript: transcript,
	}

	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			s.logger.Warn("retrying ai generation",
				zap.Uint("debate_id", debate.ID), zap.Int("attempt", attempt))
			time.Sleep(s.retry.Backoff)
		}
		content, err := s.generator.Generate(ctx, req)
		if err == nil {
			return content, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// transcript 把場次發言整理成 AI 服務需要的逐字稿
func (s *AIPlayerService) transcript(room *models.Room, debate *models.Debate) ([]ai.TranscriptEntry, error) {
	messages, err := s.repos.Message.FindByDebateID(debate.ID)
	if err != nil {
		return nil, err
	}
	turns, err := s.format.Resolve(room)
	if err != nil {
		return nil, err
	}
	return buildTranscript(messages, turns, debate.AffirmativeID), nil
}

// buildTranscript 把持久化的發言轉成 AI 服務的逐字稿條目
// 發言者立場由用戶 ID 對照正方推導，逐字稿順序跟隨環節順序
func buildTranscript(messages []models.DebateMessage, turns []models.TurnDefinition, affirmativeID uint) []ai.TranscriptEntry {
	entries := make([]ai.TranscriptEntry, 0, len(messages))
	for _, m := range messages {
		side := models.SideNegative
		if m.UserID == affirmativeID {
			side = models.SideAffirmative
		}
		turnName := ""
		if m.Turn >= 1 && m.Turn <= len(turns) {
			turnName = turns[m.Turn-1].Name
		}
		entries = append(entries, ai.TranscriptEntry{
			Speaker: string(side),
			Turn:    turnName,
			Content: m.Content,
		})
	}
	return entries
}
