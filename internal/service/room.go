package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"debate_web/internal/models"
	"debate_web/internal/repository"
)

// RoomService 管理房間的建立、參加與離開
type RoomService struct {
	repos     *repository.Repositories
	format    *FormatService
	debates   *DebateService
	publisher Publisher
	aiUserID  uint
	logger    *zap.Logger
}

func NewRoomService(repos *repository.Repositories, format *FormatService, debates *DebateService, publisher Publisher, aiUserID uint, logger *zap.Logger) *RoomService {
	return &RoomService{
		repos:     repos,
		format:    format,
		debates:   debates,
		publisher: publisher,
		aiUserID:  aiUserID,
		logger:    logger,
	}
}

// CreateRoomInput 建立房間的參數
type CreateRoomInput struct {
	Name        string
	Description string
	CreatorID   uint
	FormatName  string
	CustomTurns []models.TurnDefinition
	IsAIRoom    bool
}

// CreateRoom 建立房間，建立者自動加入正方
// AI 房間的反方固定由設定的 AI 參與者擔任，雙方到齊即 ready
func (s *RoomService) CreateRoom(input CreateRoomInput) (*models.Room, error) {
	room := &models.Room{
		Name:          input.Name,
		Description:   input.Description,
		Status:        models.RoomStatusWaiting,
		CreatorID:     input.CreatorID,
		AffirmativeID: input.CreatorID,
		FormatName:    input.FormatName,
		CustomTurns:   input.CustomTurns,
		IsAIRoom:      input.IsAIRoom,
	}
	if room.FormatName == "" && len(room.CustomTurns) == 0 {
		room.FormatName = "standard"
	}

	// 建立時就驗證賽制可解析，避免開賽才發現定義無效
	if _, err := s.format.Resolve(room); err != nil {
		return nil, err
	}

	if input.IsAIRoom {
		room.NegativeID = s.aiUserID
		room.Status = models.RoomStatusReady
	}

	if err := s.repos.Room.Create(room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *RoomService) GetRoom(roomID uint) (*models.Room, error) {
	return s.repos.Room.FindByID(roomID)
}

func (s *RoomService) ListRooms() ([]models.Room, error) {
	return s.repos.Room.FindAll()
}

// GetFormat 回傳房間解析後的發言順序
func (s *RoomService) GetFormat(roomID uint) ([]models.TurnDefinition, error) {
	room, err := s.repos.Room.FindByID(roomID)
	if err != nil {
		return nil, err
	}
	return s.format.Resolve(room)
}

// JoinRoom 以指定角色加入房間
func (s *RoomService) JoinRoom(roomID, userID uint, role string) error {
	room, err := s.repos.Room.FindByID(roomID)
	if err != nil {
		return err
	}
	if room.Status != models.RoomStatusWaiting && role != "spectator" {
		return ErrInvalidState
	}

	switch role {
	case "affirmative":
		if room.AffirmativeID != 0 {
			return ErrRoleTaken
		}
		room.AffirmativeID = userID
	case "negative":
		if room.NegativeID != 0 {
			return ErrRoleTaken
		}
		room.NegativeID = userID
	case "spectator":
		if room.Status.IsTerminal() {
			return ErrInvalidState
		}
		for _, id := range room.Spectators {
			if id == userID {
				return ErrInvalidRole
			}
		}
		room.Spectators = append(room.Spectators, userID)
	default:
		return ErrInvalidRole
	}

	if room.AffirmativeID != 0 && room.NegativeID != 0 && room.Status == models.RoomStatusWaiting {
		room.Status = models.RoomStatusReady
	}

	if err := s.repos.Room.Update(room); err != nil {
		return err
	}

	s.publisher.Publish(Event{Topic: RoomTopic(room.ID), Name: "system_message",
		Payload: fmt.Sprintf("用戶 %d 加入房間", userID)})
	return nil
}

// LeaveRoom 主動離開房間
// 與斷線終局走同一套後果：ready 退回 waiting，辯論中離開即終止
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID uint) error {
	var (
		staged     []Event
		terminated *models.Debate
	)

	err := s.repos.WithTx(func(tx *repository.Repositories) error {
		room, err := tx.Room.FindByID(roomID)
		if err != nil {
			return err
		}
		if room.Status.IsTerminal() {
			return ErrInvalidState
		}
		isMember := room.IsParticipant(userID)
		for _, id := range room.Spectators {
			if id == userID {
				isMember = true
			}
		}
		if !isMember {
			return ErrNotInRoom
		}

		wasParticipant := room.IsParticipant(userID)
		detachRoomUser(room, userID)

		if wasParticipant {
			switch room.Status {
			case models.RoomStatusReady:
				room.Status = models.RoomStatusWaiting
			case models.RoomStatusDebating:
				terminated, err = s.debates.terminateRoomTx(tx, room)
				if err != nil {
					return err
				}
			}
		}
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

// StartDebate 由參與者開始辯論
func (s *RoomService) StartDebate(ctx context.Context, roomID, userID uint) (*models.Debate, error) {
	room, err := s.repos.Room.FindByID(roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(userID) {
		return nil, ErrNotInRoom
	}
	return s.debates.Begin(ctx, roomID)
}

// DeleteRoom 由建立者刪除尚未開賽的房間
func (s *RoomService) DeleteRoom(roomID, userID uint) error {
	room, err := s.repos.Room.FindByID(roomID)
	if err != nil {
		return err
	}
	if room.CreatorID != userID {
		return ErrNotEligible
	}
	if room.Status != models.RoomStatusWaiting && room.Status != models.RoomStatusReady {
		return ErrInvalidState
	}
	room.Status = models.RoomStatusDeleted
	if err := s.repos.Room.Update(room); err != nil {
		return err
	}
	return s.repos.Room.Delete(room.ID)
}
