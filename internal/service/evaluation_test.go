package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debate_web/internal/ai"
	"debate_web/internal/models"
	"debate_web/internal/task"
)

func newEvaluationEnv(t *testing.T, judge *fakeJudge) (*testEnv, *EvaluationService) {
	t.Helper()
	env := newTestEnv()
	svc := NewEvaluationService(env.repos, env.format, judge, env.publisher, env.debates.logger)
	svc.retry = task.RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond}
	return env, svc
}

func TestEvaluateWritesVerdict(t *testing.T) {
	judge := &fakeJudge{verdict: &ai.Verdict{
		Analyzable:          true,
		Winner:              "affirmative",
		Analysis:            "正方論證較完整。",
		Reason:              "反方未回應關鍵質詢。",
		FeedbackAffirmative: "論點清晰。",
		FeedbackNegative:    "需要補強反駁。",
	}}
	env, svc := newEvaluationEnv(t, judge)
	room, debate := env.seedQuickDebate(1, 2)
	room.Status = models.RoomStatusFinished
	env.rooms.Update(room)

	require.NoError(t, svc.HandleEvaluateTask(context.Background(), debate.ID))

	evaluation, err := env.evals.FindByDebateID(debate.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WinnerAffirmative, evaluation.Winner)
	assert.Contains(t, evaluation.Analysis, "反方未回應關鍵質詢")
	assert.True(t, evaluation.Analyzable)

	// 事件在寫入之後對房間與場次主題各發一次
	assert.Len(t, env.publisher.byName(EventDebateEvaluated), 2)
}

func TestEvaluateBeforeTerminalIsDropped(t *testing.T) {
	judge := &fakeJudge{verdict: &ai.Verdict{Winner: "none"}}
	env, svc := newEvaluationEnv(t, judge)
	_, debate := env.seedQuickDebate(1, 2)

	require.NoError(t, svc.HandleEvaluateTask(context.Background(), debate.ID))
	assert.Zero(t, judge.calls)
	assert.Zero(t, env.evals.upserts)
}

func TestEvaluateRedeliveryKeepsSingleRow(t *testing.T) {
	judge := &fakeJudge{verdict: &ai.Verdict{Analyzable: true, Winner: "negative", Analysis: "分析"}}
	env, svc := newEvaluationEnv(t, judge)
	room, debate := env.seedQuickDebate(1, 2)
	room.Status = models.RoomStatusTerminated
	env.rooms.Update(room)
	ctx := context.Background()

	require.NoError(t, svc.HandleEvaluateTask(ctx, debate.ID))
	require.NoError(t, svc.HandleEvaluateTask(ctx, debate.ID))

	assert.Equal(t, 2, env.evals.upserts)
	evaluation, err := env.evals.FindByDebateID(debate.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WinnerNegative, evaluation.Winner)
}

func TestEvaluateExhaustionWritesFallback(t *testing.T) {
	judge := &fakeJudge{err: errors.New("judge unavailable")}
	env, svc := newEvaluationEnv(t, judge)
	room, debate := env.seedQuickDebate(1, 2)
	room.Status = models.RoomStatusTerminated
	env.rooms.Update(room)

	require.NoError(t, svc.HandleEvaluateTask(context.Background(), debate.ID))

	assert.Equal(t, svc.retry.MaxAttempts, judge.calls)
	evaluation, err := env.evals.FindByDebateID(debate.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WinnerNone, evaluation.Winner)
	assert.False(t, evaluation.Analyzable)
	assert.Equal(t, fallbackAnalysis, evaluation.Analysis)

	// 替代結果照常發事件，下游不會永遠等待
	assert.Len(t, env.publisher.byName(EventDebateEvaluated), 2)
}

func TestEvaluateNormalizesUnknownWinner(t *testing.T) {
	judge := &fakeJudge{verdict: &ai.Verdict{Analyzable: true, Winner: "draw", Analysis: "勢均力敵"}}
	env, svc := newEvaluationEnv(t, judge)
	room, debate := env.seedQuickDebate(1, 2)
	room.Status = models.RoomStatusFinished
	env.rooms.Update(room)

	require.NoError(t, svc.HandleEvaluateTask(context.Background(), debate.ID))

	evaluation, _ := env.evals.FindByDebateID(debate.ID)
	assert.Equal(t, models.WinnerNone, evaluation.Winner)
}

func TestEvaluateForMissingDebateIsDropped(t *testing.T) {
	_, svc := newEvaluationEnv(t, &fakeJudge{})
	assert.NoError(t, svc.HandleEvaluateTask(context.Background(), 404))
}
