package task

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// keyScheduled 是延遲任務的 Redis sorted set，score 為預定執行時間
	keyScheduled = "tasks:scheduled"
	// keyDLQ 存放重試耗盡的任務
	keyDLQ = "tasks:dlq"

	pollInterval = 200 * time.Millisecond
)

// Job 是任務的通用信封
type Job struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	RunAt     time.Time       `json:"run_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// Handler 處理單一任務，回傳錯誤時依該種類的 RetryPolicy 決定重排或進入 DLQ
type Handler func(ctx context.Context, payload json.RawMessage) error

// Scheduler 是服務層排程任務時依賴的介面
type Scheduler interface {
	Schedule(ctx context.Context, kind string, payload interface{}, delay time.Duration) error
	ScheduleAt(ctx context.Context, kind string, payload interface{}, runAt time.Time) error
}

// Queue 是以 Redis sorted set 實作的延遲任務隊列
// 交付語意為 at-least-once：處理器必須自行以比較再行動的守衛達成冪等
type Queue struct {
	client   *redis.Client
	logger   *zap.Logger
	handlers map[string]Handler
	policies map[string]RetryPolicy
}

func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		client:   client,
		logger:   logger,
		handlers: make(map[string]Handler),
		policies: DefaultPolicies,
	}
}

// Register 為指定任務種類註冊處理器，必須在 Run 之前完成
func (q *Queue) Register(kind string, handler Handler) {
	q.handlers[kind] = handler
}

// Schedule 在 delay 之後執行任務
func (q *Queue) Schedule(ctx context.Context, kind string, payload interface{}, delay time.Duration) error {
	return q.ScheduleAt(ctx, kind, payload, time.Now().Add(delay))
}

// ScheduleAt 在指定時間執行任務
func (q *Queue) ScheduleAt(ctx context.Context, kind string, payload interface{}, runAt time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   body,
		Attempt:   0,
		RunAt:     runAt,
		CreatedAt: time.Now(),
	}
	return q.push(ctx, &job)
}

func (q *Queue) push(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	err = q.client.ZAdd(ctx, keyScheduled, redis.Z{
		Score:  float64(job.RunAt.UnixMilli()),
		Member: raw,
	}).Err()
	if err != nil {
		return err
	}
	q.logger.Debug("task scheduled",
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.Time("run_at", job.RunAt))
	return nil
}

// Run 啟動工作迴圈，輪詢到期任務並分發給處理器
// 多個實例可以同時執行：ZRem 是原子的，只有成功移除的實例取得任務
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("task worker stopping")
			return
		case <-ticker.C:
			q.drainDue(ctx)
		}
	}
}

// drainDue 取出所有已到期的任務並逐一認領
func (q *Queue) drainDue(ctx context.Context) {
	now := time.Now().UnixMilli()
	members, err := q.client.ZRangeByScore(ctx, keyScheduled, &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now, 10), Count: 32,
	}).Result()
	if err != nil {
		q.logger.Warn("poll scheduled tasks failed", zap.Error(err))
		return
	}

	for _, raw := range members {
		removed, err := q.client.ZRem(ctx, keyScheduled, raw).Result()
		if err != nil || removed == 0 {
			// 被其他實例搶先認領
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Warn("invalid job payload", zap.String("raw", raw), zap.Error(err))
			continue
		}
		go q.dispatch(ctx, &job)
	}
}

// dispatch 執行單一任務並處理重試
// 任務處理器絕不讓錯誤往外傳：重試耗盡後記錄並進入 DLQ
func (q *Queue) dispatch(ctx context.Context, job *Job) {
	handler, ok := q.handlers[job.Kind]
	if !ok {
		q.logger.Error("no handler for task kind", zap.String("kind", job.Kind))
		return
	}

	err := handler(ctx, job.Payload)
	if err == nil {
		return
	}

	policy := q.policies[job.Kind]
	job.Attempt++
	if job.Attempt < policy.MaxAttempts {
		job.RunAt = time.Now().Add(policy.Backoff)
		if pushErr := q.push(ctx, job); pushErr != nil {
			q.logger.Error("task retry enqueue failed",
				zap.String("job_id", job.ID), zap.Error(pushErr))
			return
		}
		q.logger.Info("task retried",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.Int("attempt", job.Attempt),
			zap.Error(err))
		return
	}

	raw, _ := json.Marshal(job)
	if dlqErr := q.client.RPush(ctx, keyDLQ, raw).Err(); dlqErr != nil {
		q.logger.Error("dlq push failed", zap.String("job_id", job.ID), zap.Error(dlqErr))
	}
	q.logger.Error("task moved to DLQ",
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.Int("attempt", job.Attempt),
		zap.Error(err))
}
