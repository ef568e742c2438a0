package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broadcaster 把已提交的事件發布到 Redis 頻道
// 這是 outbox 流程的發布端：交易內只暫存事件，提交後才會走到這裡，
// 訂閱端（WebSocketManager）再把事件送到各自房間的客戶端
type Broadcaster struct {
	client *redis.Client
	logger *zap.Logger
}

func NewBroadcaster(client *redis.Client, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{client: client, logger: logger}
}

func (b *Broadcaster) Publish(events ...Event) {
	for _, event := range events {
		body, err := json.Marshal(event)
		if err != nil {
			b.logger.Error("event marshal failed", zap.String("event", event.Name), zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.client.Publish(ctx, event.Topic, body).Err(); err != nil {
			b.logger.Error("event publish failed",
				zap.String("topic", event.Topic), zap.String("event", event.Name), zap.Error(err))
		}
		cancel()
	}
}
