package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"debate_web/internal/ai"
	"debate_web/internal/repository"
	"debate_web/internal/storage"
	"debate_web/internal/task"
	"debate_web/pkg/config"
)

type Services struct {
	User        *UserService
	Room        *RoomService
	Format      *FormatService
	Debate      *DebateService
	Termination *TerminationService
	Connection  *ConnectionService
	AIPlayer    *AIPlayerService
	Evaluation  *EvaluationService
	WebSocket   *WebSocketManager
}

func NewServices(repos *repository.Repositories, redisClient *storage.RedisClient, queue *task.Queue, aiClient *ai.Client, cfg *config.Config, logger *zap.Logger) *Services {
	broadcaster := NewBroadcaster(redisClient.Client, logger)
	format := NewFormatService()

	debates := NewDebateService(repos, format, queue, broadcaster, cfg.AI.UserID, logger)
	termination := NewTerminationService(repos, debates,
		NewRedisTerminationStore(redisClient.Client), queue, broadcaster,
		cfg.Debate.TerminationWindow, cfg.AI.UserID, logger)
	connections := NewConnectionService(repos, debates, queue, broadcaster, cfg.Debate.DisconnectGrace, logger)
	aiPlayer := NewAIPlayerService(repos, format, debates, aiClient, queue, broadcaster,
		cfg.AI.UserID, cfg.Debate.AITurnPause, logger)
	evaluation := NewEvaluationService(repos, format, aiClient, broadcaster, logger)
	rooms := NewRoomService(repos, format, debates, broadcaster, cfg.AI.UserID, logger)

	return &Services{
		User:        NewUserService(repos.User),
		Room:        rooms,
		Format:      format,
		Debate:      debates,
		Termination: termination,
		Connection:  connections,
		AIPlayer:    aiPlayer,
		Evaluation:  evaluation,
		WebSocket:   NewWebSocketManager(redisClient.Client, connections, debates, logger),
	}
}

// RegisterTaskHandlers 把各任務種類接上對應的服務進入點
// 任務是 at-least-once 投遞，每個處理器都以守衛比對把重複投遞收斂成 noop
func (s *Services) RegisterTaskHandlers(queue *task.Queue) {
	queue.Register(task.KindTurnAdvance, func(ctx context.Context, raw json.RawMessage) error {
		var p turnAdvancePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return s.Debate.HandleTurnAdvanceTask(ctx, p.DebateID, p.ExpectedTurn)
	})

	queue.Register(task.KindAITurn, func(ctx context.Context, raw json.RawMessage) error {
		var p aiTurnPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return s.AIPlayer.HandleAITurnTask(ctx, p)
	})

	queue.Register(task.KindEvaluate, func(ctx context.Context, raw json.RawMessage) error {
		var p evaluatePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return s.Evaluation.HandleEvaluateTask(ctx, p.DebateID)
	})

	queue.Register(task.KindConnFinalize, func(ctx context.Context, raw json.RawMessage) error {
		var p connFinalizePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return s.Connection.HandleFinalizeTask(ctx, p)
	})

	queue.Register(task.KindTerminationTimeout, func(ctx context.Context, raw json.RawMessage) error {
		var p terminationTimeoutPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return s.Termination.HandleTimeoutTask(ctx, p.DebateID, p.RequestedAt)
	})
}
