package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"debate_web/internal/models"
	"debate_web/internal/repository"
	"debate_web/internal/task"
)

// terminationEntry 是提前結束請求的暫存條目
// 存在即代表狀態 requested；協議的終局（同意/拒絕/逾時）靠廣播觀察，不落地
type terminationEntry struct {
	RequestedBy uint  `json:"requested_by"`
	RequestedAt int64 `json:"requested_at"` // unix 毫秒，逾時任務用來識別自己對應的請求
}

type terminationTimeoutPayload struct {
	DebateID    uint  `json:"debate_id"`
	RequestedAt int64 `json:"requested_at"`
}

// TerminationStore 存取暫存條目，每個場次最多一筆
type TerminationStore interface {
	PutIfAbsent(ctx context.Context, debateID uint, entry terminationEntry, ttl time.Duration) (bool, error)
	Get(ctx context.Context, debateID uint) (*terminationEntry, error)
	Delete(ctx context.Context, debateID uint) error
}

type redisTerminationStore struct {
	client *redis.Client
}

func NewRedisTerminationStore(client *redis.Client) TerminationStore {
	return &redisTerminationStore{client: client}
}

func terminationKey(debateID uint) string {
	return fmt.Sprintf("debate:termination:%d", debateID)
}

func (s *redisTerminationStore) PutIfAbsent(ctx context.Context, debateID uint, entry terminationEntry, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, terminationKey(debateID), raw, ttl).Result()
}

func (s *redisTerminationStore) Get(ctx context.Context, debateID uint) (*terminationEntry, error) {
	raw, err := s.client.Get(ctx, terminationKey(debateID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry terminationEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *redisTerminationStore) Delete(ctx context.Context, debateID uint) error {
	return s.client.Del(ctx, terminationKey(debateID)).Err()
}

// TerminationStatus 提供給呈現層的協商狀態
type TerminationStatus struct {
	Requested   bool `json:"requested"`
	RequestedBy uint `json:"requested_by,omitempty"`
}

// TerminationService 執行提前結束的協商協議
// 狀態流：none → requested → {agreed | declined | expired}，離開後不再回頭
type TerminationService struct {
	repos     *repository.Repositories
	debates   *DebateService
	store     TerminationStore
	scheduler task.Scheduler
	publisher Publisher
	window    time.Duration
	aiUserID  uint
	logger    *zap.Logger
}

func NewTerminationService(repos *repository.Repositories, debates *DebateService, store TerminationStore, scheduler task.Scheduler, publisher Publisher, window time.Duration, aiUserID uint, logger *zap.Logger) *TerminationService {
	return &TerminationService{
		repos:     repos,
		debates:   debates,
		store:     store,
		scheduler: scheduler,
		publisher: publisher,
		window:    window,
		aiUserID:  aiUserID,
		logger:    logger,
	}
}

// Propose 由參與者提出提前結束請求
// AI 房間裡人類提出後，同一個邏輯操作內由 AI 立即同意，不走 60 秒等待
func (s *TerminationService) Propose(ctx context.Context, debateID, userID uint) error {
	_, room, err := s.load(debateID)
	if err != nil {
		return err
	}
	if !room.IsParticipant(userID) || room.Status != models.RoomStatusDebating {
		return ErrNotEligible
	}

	entry := terminationEntry{RequestedBy: userID, RequestedAt: time.Now().UnixMilli()}
	// TTL 略長於協商窗口：逾時效果由任務負責，TTL 只是遺留條目的保險
	ok, err := s.store.PutIfAbsent(ctx, debateID, entry, s.window*2)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotEligible
	}

	err = s.scheduler.Schedule(ctx, task.KindTerminationTimeout,
		terminationTimeoutPayload{DebateID: debateID, RequestedAt: entry.RequestedAt}, s.window)
	if err != nil {
		s.logger.Error("schedule termination timeout failed", zap.Uint("debate_id", debateID), zap.Error(err))
	}

	s.publisher.Publish(Event{Topic: DebateTopic(debateID), Name: EventTerminationRequested,
		Payload: TerminationPayload{RequestedBy: userID}})

	if room.IsAIRoom && userID != s.aiUserID {
		// 刻意的捷徑：AI 不會真的「等待」
		return s.Respond(ctx, debateID, s.aiUserID, true)
	}
	return nil
}

// Respond 由另一方回應進行中的請求
func (s *TerminationService) Respond(ctx context.Context, debateID, userID uint, agree bool) error {
	_, room, err := s.load(debateID)
	if err != nil {
		return err
	}

	entry, err := s.store.Get(ctx, debateID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrNoActiveRequest
	}
	if entry.RequestedBy == userID {
		return ErrSelfResponse
	}
	if !room.IsParticipant(userID) {
		return ErrNotEligible
	}

	if !agree {
		if err := s.store.Delete(ctx, debateID); err != nil {
			s.logger.Warn("delete termination entry failed", zap.Uint("debate_id", debateID), zap.Error(err))
		}
		s.publisher.Publish(Event{Topic: DebateTopic(debateID), Name: EventTerminationDeclined,
			Payload: TerminationPayload{RespondedBy: userID}})
		return nil
	}

	var (
		terminated  *models.Debate
		wasTerminal bool
	)
	err = s.repos.WithTx(func(tx *repository.Repositories) error {
		room, err := tx.Room.FindByID(room.ID)
		if err != nil {
			return err
		}
		wasTerminal = room.Status.IsTerminal()
		terminated, err = s.debates.terminateRoomTx(tx, room)
		return err
	})
	if err != nil {
		return err
	}

	// 條目在提交之後才清除，交易失敗時請求仍然有效
	if err := s.store.Delete(ctx, debateID); err != nil {
		s.logger.Warn("delete termination entry failed", zap.Uint("debate_id", debateID), zap.Error(err))
	}

	// 房間在提出與回應之間已經到達終局：同意是遲到的形式，不再廣播
	if wasTerminal {
		return nil
	}

	s.publisher.Publish(
		Event{Topic: DebateTopic(debateID), Name: EventTerminationAgreed, Payload: TerminationPayload{RespondedBy: userID}},
		Event{Topic: RoomTopic(room.ID), Name: EventTerminationAgreed, Payload: TerminationPayload{RespondedBy: userID}},
	)
	if terminated != nil {
		s.debates.ScheduleEvaluation(ctx, terminated.ID)
	}
	return nil
}

// HandleTimeoutTask 協商窗口到期時執行
// 只有條目仍存在且時間戳與排程當下一致才生效，
// 防止「舊請求已解決、新請求又提出」後舊計時器誤殺新請求
func (s *TerminationService) HandleTimeoutTask(ctx context.Context, debateID uint, requestedAt int64) error {
	entry, err := s.store.Get(ctx, debateID)
	if err != nil {
		return err
	}
	if entry == nil || entry.RequestedAt != requestedAt {
		s.logger.Debug("stale termination timeout dropped", zap.Uint("debate_id", debateID))
		return nil
	}

	if err := s.store.Delete(ctx, debateID); err != nil {
		return err
	}
	s.publisher.Publish(Event{Topic: DebateTopic(debateID), Name: EventTerminationExpired, Payload: TerminationPayload{}})
	return nil
}

// Status 回報協商目前的狀態，供呈現層輪詢
func (s *TerminationService) Status(ctx context.Context, debateID uint) (*TerminationStatus, error) {
	entry, err := s.store.Get(ctx, debateID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &TerminationStatus{}, nil
	}
	return &TerminationStatus{Requested: true, RequestedBy: entry.RequestedBy}, nil
}

// CanPropose 檢查用戶目前是否可以提出請求
func (s *TerminationService) CanPropose(ctx context.Context, debateID, userID uint) (bool, error) {
	_, room, err := s.load(debateID)
	if err != nil {
		return false, err
	}
	if !room.IsParticipant(userID) || room.Status != models.RoomStatusDebating {
		return false, nil
	}
	entry, err := s.store.Get(ctx, debateID)
	if err != nil {
		return false, err
	}
	return entry == nil, nil
}

// CanRespond 檢查用戶目前是否可以回應請求
func (s *TerminationService) CanRespond(ctx context.Context, debateID, userID uint) (bool, error) {
	_, room, err := s.load(debateID)
	if err != nil {
		return false, err
	}
	if !room.IsParticipant(userID) {
		return false, nil
	}
	entry, err := s.store.Get(ctx, debateID)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.RequestedBy != userID, nil
}

func (s *TerminationService) load(debateID uint) (*models.Debate, *models.Room, error) {
	debate, err := s.repos.Debate.FindByID(debateID)
	if err != nil {
		return nil, nil, err
	}
	room, err := s.repos.Room.FindByID(debate.RoomID)
	if err != nil {
		return nil, nil, err
	}
	return debate, room, nil
}
