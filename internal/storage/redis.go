package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisClient 包裝 go-redis 客戶端
// 用於提前結束協商的暫存條目、延遲任務隊列與跨實例事件廣播
type RedisClient struct {
	*redis.Client
}

// NewRedisClient 建立 Redis 連線並驗證連通性
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisClient{Client: rdb}, nil
}
