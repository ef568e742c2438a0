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

type connFinalizePayload struct {
	UserID      uint                     `json:"user_id"`
	ContextType models.ConnectionContext `json:"context_type"`
	ContextID   uint                     `json:"context_id"`
	LostAt      int64                    `json:"lost_at"` // unix 毫秒，寬限期的起點
}

// ConnectionService 調解連線與斷線訊號
// (user, context) 的連線狀態是由連線記錄導出的，不直接儲存
type ConnectionService struct {
	repos     *repository.Repositories
	debates   *DebateService
	scheduler task.Scheduler
	publisher Publisher
	grace     time.Duration
	logger    *zap.Logger
}

func NewConnectionService(repos *repository.Repositories, debates *DebateService, scheduler task.Scheduler, publisher Publisher, grace time.Duration, logger *zap.Logger) *ConnectionService {
	return &ConnectionService{
		repos:     repos,
		debates:   debates,
		scheduler: scheduler,
		publisher: publisher,
		grace:     grace,
		logger:    logger,
	}
}

// Heartbeat 記錄一筆 connected 條目，最新一筆決定當前狀態
func (s *ConnectionService) Heartbeat(ctx context.Context, userID uint, ctxType models.ConnectionContext, ctxID uint) error {
	return s.repos.ConnectionLog.Append(&models.ConnectionLog{
		UserID:      userID,
		ContextType: ctxType,
		ContextID:   ctxID,
		Status:      models.ConnectionConnected,
		Timestamp:   time.Now(),
	})
}

// OnPresenceLost 偵測到連線中斷時排程延後的終局判定
// 不立即行動是為了吸收換頻道造成的瞬斷（例如從房間頻道切到場次頻道）
func (s *ConnectionService) OnPresenceLost(ctx context.Context, userID uint, ctxType models.ConnectionContext, ctxID uint) {
	payload := connFinalizePayload{
		UserID:      userID,
		ContextType: ctxType,
		ContextID:   ctxID,
		LostAt:      time.Now().UnixMilli(),
	}
	if err := s.scheduler.Schedule(ctx, task.KindConnFinalize, payload, s.grace); err != nil {
		s.logger.Error("schedule disconnect finalize failed",
			zap.Uint("user_id", userID), zap.Error(err))
	}
}

// HandleFinalizeTask 寬限期結束後做斷線終局判定
// 寬限期內有新的 connected 條目（心跳或重連）就是 noop：重連獲勝
func (s *ConnectionService) HandleFinalizeTask(ctx context.Context, payload connFinalizePayload) error {
	latest, err := s.repos.ConnectionLog.Latest(payload.UserID, payload.ContextType, payload.ContextID)
	if err != nil {
		return err
	}
	lostAt := time.UnixMilli(payload.LostAt)
	if latest != nil && latest.Status == models.ConnectionConnected && latest.Timestamp.After(lostAt) {
		s.logger.Debug("reconnection beat the grace period",
			zap.Uint("user_id", payload.UserID), zap.Uint("context_id", payload.ContextID))
		return nil
	}

	if err := s.repos.ConnectionLog.Append(&models.ConnectionLog{
		UserID:      payload.UserID,
		ContextType: payload.ContextType,
		ContextID:   payload.ContextID,
		Status:      models.ConnectionDisconnected,
		Timestamp:   time.Now(),
	}); err != nil {
		return err
	}

	switch payload.ContextType {
	case models.ContextRoom:
		return s.finalizeRoomContext(ctx, payload.UserID, payload.ContextID)
	case models.ContextDebate:
		return s.finalizeDebateContext(ctx, payload.UserID, payload.ContextID)
	}
	return nil
}

// finalizeRoomContext 處理房間頻道的斷線後果
func (s *ConnectionService) finalizeRoomContext(ctx context.Context, userID, roomID uint) error {
	var (
		staged     []Event
		terminated *models.Debate
	)

	err := s.repos.WithTx(func(tx *repository.Repositories) error {
		room, err := tx.Room.FindByID(roomID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("finalize for missing room", zap.Uint("room_id", roomID))
			return nil
		}
		if err != nil {
			return err
		}

		// 換頻道特例：用戶已在同場次的 debate 頻道上保持連線，
		// 這不是離開，整個房間頻道的斷線後果都不生效
		if room.Status == models.RoomStatusDebating {
			debate, err := tx.Debate.FindByRoomID(room.ID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if debate != nil {
				sibling, err := tx.ConnectionLog.Latest(userID, models.ContextDebate, debate.ID)
				if err != nil {
					return err
				}
				if sibling != nil && sibling.Status == models.ConnectionConnected {
					s.logger.Debug("room disconnect was a channel move",
						zap.Uint("user_id", userID), zap.Uint("debate_id", debate.ID))
					return nil
				}
			}
		}

		wasParticipant := room.IsParticipant(userID)
		detachRoomUser(room, userID)

		// 狀態後果只適用於辯論方：觀眾斷線不會動到房間狀態
		if wasParticipant {
			switch room.Status {
			case models.RoomStatusWaiting:
				// 等待中離開不影響狀態
			case models.RoomStatusReady:
				room.Status = models.RoomStatusWaiting
			case models.RoomStatusDebating:
				terminated, err = s.debates.terminateRoomTx(tx, room)
				if err != nil {
					return err
				}
			}
		}

		// 建立者離開時房間直接終止，無論上面的結果
		if userID == room.CreatorID && !room.Status.IsTerminal() {
			terminated, err = s.debates.terminateRoomTx(tx, room)
			if err != nil {
				return err
			}
		}

		if !room.Status.IsTerminal() {
			if err := tx.Room.Update(room); err != nil {
				return err
			}
		}

		name := EventUserLeftRoom
		if userID == room.CreatorID {
			name = EventCreatorLeftRoom
		}
		staged = append(staged, Event{Topic: RoomTopic(room.ID), Name: name,
			Payload: RoomMemberPayload{UserID: userID, Status: room.Status}})
		return nil
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(staged...)
	if terminated != nil {
		s.debates.ScheduleEvaluation(ctx, terminated.ID)
	}
	return nil
}

// finalizeDebateContext 處理場次頻道的斷線後果
func (s *ConnectionService) finalizeDebateContext(ctx context.Context, userID, debateID uint) error {
	var terminated *models.Debate

	err := s.repos.WithTx(func(tx *repository.Repositories) error {
		debate, err := tx.Debate.FindByID(debateID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("finalize for missing debate", zap.Uint("debate_id", debateID))
			return nil
		}
		if err != nil {
			return err
		}
		room, err := tx.Room.FindByID(debate.RoomID)
		if err != nil {
			return err
		}
		if room.Status != models.RoomStatusDebating || !room.IsParticipant(userID) {
			return nil
		}
		terminated, err = s.debates.terminateRoomTx(tx, room)
		return err
	})
	if err != nil {
		return err
	}

	if terminated != nil {
		s.publisher.Publish(Event{Topic: DebateTopic(debateID), Name: EventUserLeftRoom,
			Payload: RoomMemberPayload{UserID: userID, Status: models.RoomStatusTerminated}})
		s.debates.ScheduleEvaluation(ctx, terminated.ID)
	}
	return nil
}

// detachRoomUser 把用戶從房間的參與者集合中移除
func detachRoomUser(room *models.Room, userID uint) {
	switch userID {
	case room.AffirmativeID:
		room.AffirmativeID = 0
	case room.NegativeID:
		room.NegativeID = 0
	}
	for i, id := range room.Spectators {
		if id == userID {
			room.Spectators = append(room.Spectators[:i], room.Spectators[i+1:]...)
			break
		}
	}
}
