package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"debate_web/internal/models"
	"debate_web/internal/repository"
	"debate_web/internal/task"
)

// AdvanceOutcome 是回合推進的三種結果
type AdvanceOutcome string

const (
	AdvanceAdvanced AdvanceOutcome = "advanced"
	AdvanceNoop     AdvanceOutcome = "noop"
	AdvanceFinished AdvanceOutcome = "finished"
)

// turnAdvancePayload 回合計時器任務的內容
// ExpectedTurn 是排程當下的回合索引，執行時不相符就代表計時器已過期
type turnAdvancePayload struct {
	DebateID     uint `json:"debate_id"`
	ExpectedTurn int  `json:"expected_turn"`
}

type aiTurnPayload struct {
	DebateID uint `json:"debate_id"`
	Turn     int  `json:"turn"`
	// Reply 表示這次觸發來自質詢環節中的人類發言，而非回合推進
	Reply bool `json:"reply,omitempty"`
}

type evaluatePayload struct {
	DebateID uint `json:"debate_id"`
}

// DebateService 是回合狀態機，「當前回合」唯一的權威
type DebateService struct {
	repos     *repository.Repositories
	format    *FormatService
	scheduler task.Scheduler
	publisher Publisher
	aiUserID  uint
	logger    *zap.Logger
}

func NewDebateService(repos *repository.Repositories, format *FormatService, scheduler task.Scheduler, publisher Publisher, aiUserID uint, logger *zap.Logger) *DebateService {
	return &DebateService{
		repos:     repos,
		format:    format,
		scheduler: scheduler,
		publisher: publisher,
		aiUserID:  aiUserID,
		logger:    logger,
	}
}

func (s *DebateService) GetDebate(debateID uint) (*models.Debate, error) {
	return s.repos.Debate.FindByID(debateID)
}

func (s *DebateService) GetDebateByRoom(roomID uint) (*models.Debate, error) {
	return s.repos.Debate.FindByRoomID(roomID)
}

// Begin 由 ready 狀態開始辯論：創建場次、進入第一環節並啟動計時
func (s *DebateService) Begin(ctx context.Context, roomID uint) (*models.Debate, error) {
	var (
		debate *models.Debate
		staged []Event
	)

	err := s.repos.WithTx(func(tx *repository.Repositories) error {
		room, err := tx.Room.FindByID(roomID)
		if err != nil {
			return err
		}
		if room.Status != models.RoomStatusReady {
			return ErrInvalidState
		}

		turns, err := s.format.Resolve(room)
		if err != nil {
			return err
		}

		first := turns[0]
		expires := time.Now().Add(time.Duration(first.Duration) * time.Second)
		debate = &models.Debate{
			RoomID:        room.ID,
			AffirmativeID: room.AffirmativeID,
			NegativeID:    room.NegativeID,
			CurrentTurn:   1,
			TurnExpiresAt: &expires,
		}
		if err := tx.Debate.Create(debate); err != nil {
			return err
		}

		room.Status = models.RoomStatusDebating
		if err := tx.Room.Update(room); err != nil {
			return err
		}

		staged = []Event{
			{Topic: RoomTopic(room.ID), Name: EventDebateStarted, Payload: map[string]uint{"debate_id": debate.ID}},
			{Topic: DebateTopic(debate.ID), Name: EventTurnAdvanced, Payload: TurnAdvancedPayload{
				Turn: 1, Name: first.Name, Side: first.Side, SpeakerID: first.SpeakerID(room),
				Duration: first.Duration, ExpiresAt: expires, IsPrep: first.IsPrep, IsQA: first.IsQA,
			}},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(staged...)
	s.armTurnTimer(ctx, debate.ID, 1, *debate.TurnExpiresAt)
	s.triggerAITurn(ctx, debate.ID, 1)
	return debate, nil
}

// Advance 將場次從 expectedTurn 推進到下一環節或終局
//
// expectedTurn 與當前回合的比對是系統唯一的併發守衛：
// 計時器、手動結束發言與重複投遞的任務都走同一條路，
// 在交易內鎖定場次列後重讀比較，不相符者一律靜默收斂為 noop
func (s *DebateService) Advance(ctx context.Context, debateID uint, expectedTurn int) (AdvanceOutcome, error) {
	outcome := AdvanceNoop
	var (
		staged   []Event
		armAt    time.Time
		nextTurn int
	)

	err := s.repos.WithTx(func(tx *repository.Repositories) error {
		debate, err := tx.Debate.FindByIDForUpdate(debateID)
		if err != nil {
			return err
		}
		room, err := tx.Room.FindByID(debate.RoomID)
		if err != nil {
			return err
		}

		// 狀態先行：離開 debating 之後任何推進都是 noop，不看回合索引
		if room.Status != models.RoomStatusDebating {
			s.logger.Debug("advance on non-debating room",
				zap.Uint("debate_id", debateID),
				zap.String("status", string(room.Status)))
			return nil
		}
		if debate.CurrentTurn != expectedTurn {
			s.logger.Debug("stale advance dropped",
				zap.Uint("debate_id", debateID),
				zap.Int("expected", expectedTurn),
				zap.Int("current", debate.CurrentTurn))
			return nil
		}

		turns, err := s.format.Resolve(room)
		if err != nil {
			return err
		}

		next := debate.CurrentTurn + 1
		if next > len(turns) {
			debate.CurrentTurn = next
			debate.TurnExpiresAt = nil
			if err := tx.Debate.Update(debate); err != nil {
				return err
			}
			room.Status = models.RoomStatusFinished
			if err := tx.Room.Update(room); err != nil {
				return err
			}
			outcome = AdvanceFinished
			staged = []Event{
				{Topic: DebateTopic(debate.ID), Name: EventDebateFinished, Payload: map[string]uint{"debate_id": debate.ID}},
				{Topic: RoomTopic(room.ID), Name: EventDebateFinished, Payload: map[string]uint{"debate_id": debate.ID}},
			}
			return nil
		}

		turn := turns[next-1]
		expires := time.Now().Add(time.Duration(turn.Duration) * time.Second)
		debate.CurrentTurn = next
		debate.TurnExpiresAt = &expires
		if err := tx.Debate.Update(debate); err != nil {
			return err
		}

		outcome = AdvanceAdvanced
		nextTurn = next
		armAt = expires
		staged = []Event{{Topic: DebateTopic(debate.ID), Name: EventTurnAdvanced, Payload: TurnAdvancedPayload{
			Turn: next, Name: turn.Name, Side: turn.Side, SpeakerID: turn.SpeakerID(room),
			Duration: turn.Duration, ExpiresAt: expires, IsPrep: turn.IsPrep, IsQA: turn.IsQA,
		}}}
		return nil
	})
	if err != nil {
		return AdvanceNoop, err
	}

	s.publisher.Publish(staged...)

	switch outcome {
	case AdvanceAdvanced:
		s.armTurnTimer(ctx, debateID, nextTurn, armAt)
		s.triggerAITurn(ctx, debateID, nextTurn)
	case AdvanceFinished:
		s.ScheduleEvaluation(ctx, debateID)
	}
	return outcome, nil
}

// EndSpeech 由當前發言者手動結束自己的環節
// 走與計時器完全相同的 Advance 路徑，稍後才觸發的舊計時器必然落入 noop
func (s *DebateService) EndSpeech(ctx context.Context, debateID, userID uint) (AdvanceOutcome, error) {
	debate, err := s.repos.Debate.FindByID(debateID)
	if err != nil {
		return AdvanceNoop, err
	}
	room, err := s.repos.Room.FindByID(debate.RoomID)
	if err != nil {
		return AdvanceNoop, err
	}
	if !room.IsParticipant(userID) {
		return AdvanceNoop, ErrNotSpeaker
	}

	turn, ok, err := s.format.Turn(room, debate.CurrentTurn)
	if err != nil {
		return AdvanceNoop, err
	}
	if ok {
		// 準備時間沒有發言者，任一參與者都可以提前結束
		if expected := turn.SpeakerID(room); expected != 0 && expected != userID {
			return AdvanceNoop, ErrNotSpeaker
		}
	}

	return s.Advance(ctx, debateID, debate.CurrentTurn)
}

// PostMessage 在當前環節發言
// 非質詢環節只接受該環節的預期發言者，質詢環節雙方皆可
func (s *DebateService) PostMessage(ctx context.Context, debateID, userID uint, content string) (*models.DebateMessage, error) {
	debate, err := s.repos.Debate.FindByID(debateID)
	if err != nil {
		return nil, err
	}
	room, err := s.repos.Room.FindByID(debate.RoomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusDebating {
		return nil, ErrInvalidState
	}

	turn, ok, err := s.format.Turn(room, debate.CurrentTurn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	switch {
	case turn.IsPrep:
		return nil, ErrNotSpeaker
	case turn.IsQA:
		if !room.IsParticipant(userID) {
			return nil, ErrNotSpeaker
		}
	default:
		if turn.SpeakerID(room) != userID {
			return nil, ErrNotSpeaker
		}
	}

	message := models.NewDebateMessage(debateID, userID, content, debate.CurrentTurn)
	if err := s.repos.Message.Create(message); err != nil {
		return nil, err
	}

	s.publisher.Publish(Event{Topic: DebateTopic(debateID), Name: EventDebateMessage, Payload: MessagePayload{
		MessageID: message.ID,
		UserID:    userID,
		Content:   content,
		Turn:      message.Turn,
		Timestamp: message.Timestamp,
	}})

	// 質詢環節中由人類發言觸發 AI 回應，環節本身不因此推進
	if turn.IsQA && room.IsAIRoom && userID != s.aiUserID {
		s.scheduleAITurn(ctx, aiTurnPayload{DebateID: debateID, Turn: debate.CurrentTurn, Reply: true})
	}
	return message, nil
}

func (s *DebateService) Messages(debateID uint) ([]models.DebateMessage, error) {
	return s.repos.Message.FindByDebateID(debateID)
}

// ScheduleEvaluation 在場次到達終局後排入評審任務
func (s *DebateService) ScheduleEvaluation(ctx context.Context, debateID uint) {
	if err := s.scheduler.Schedule(ctx, task.KindEvaluate, evaluatePayload{DebateID: debateID}, 0); err != nil {
		s.logger.Error("schedule evaluation failed", zap.Uint("debate_id", debateID), zap.Error(err))
	}
}

// armTurnTimer 重新武裝回合計時器
func (s *DebateService) armTurnTimer(ctx context.Context, debateID uint, expectedTurn int, fireAt time.Time) {
	err := s.scheduler.ScheduleAt(ctx, task.KindTurnAdvance,
		turnAdvancePayload{DebateID: debateID, ExpectedTurn: expectedTurn}, fireAt)
	if err != nil {
		s.logger.Error("arm turn timer failed",
			zap.Uint("debate_id", debateID), zap.Int("turn", expectedTurn), zap.Error(err))
	}
}

// triggerAITurn 通知 AI 回合協調器，是否接手由協調器自行判斷
func (s *DebateService) triggerAITurn(ctx context.Context, debateID uint, turn int) {
	s.scheduleAITurn(ctx, aiTurnPayload{DebateID: debateID, Turn: turn})
}

func (s *DebateService) scheduleAITurn(ctx context.Context, payload aiTurnPayload) {
	if err := s.scheduler.Schedule(ctx, task.KindAITurn, payload, 0); err != nil {
		s.logger.Error("trigger ai turn failed", zap.Uint("debate_id", payload.DebateID), zap.Error(err))
	}
}

// terminateRoomTx 在呼叫者的交易內把房間強制轉為 terminated
// 提前結束協商與斷線調解共用這條路，終端狀態直接回傳 nil 不再轉移
func (s *DebateService) terminateRoomTx(tx *repository.Repositories, room *models.Room) (*models.Debate, error) {
	if room.Status.IsTerminal() {
		return nil, nil
	}
	room.Status = models.RoomStatusTerminated
	if err := tx.Room.Update(room); err != nil {
		return nil, err
	}

	debate, err := tx.Debate.FindByRoomID(room.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	debate.TurnExpiresAt = nil
	if err := tx.Debate.Update(debate); err != nil {
		return nil, err
	}
	return debate, nil
}

// HandleTurnAdvanceTask 是回合計時器任務的進入點
func (s *DebateService) HandleTurnAdvanceTask(ctx context.Context, debateID uint, expectedTurn int) error {
	_, err := s.Advance(ctx, debateID, expectedTurn)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 場次在計時期間被刪除，記錄後放棄
		s.logger.Warn("turn timer fired for missing debate", zap.Uint("debate_id", debateID))
		return nil
	}
	return err
}
