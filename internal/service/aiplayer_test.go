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

func newAIPlayerEnv(t *testing.T, generator *fakeGenerator) (*testEnv, *AIPlayerService) {
	t.Helper()
	env := newTestEnv()
	svc := NewAIPlayerService(env.repos, env.format, env.debates, generator,
		env.scheduler, env.publisher, testAIUserID, 2*time.Second, env.debates.logger)
	// 測試不等真實退避
	svc.retry = task.RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond}
	return env, svc
}

// seedAIDebate 建立一個 AI 對戰房間，反方由 AI 擔任，停在指定環節
func seedAIDebate(env *testEnv, turn int) (*models.Room, *models.Debate) {
	room, debate := env.seedQuickDebate(1, testAIUserID)
	room.IsAIRoom = true
	env.rooms.Update(room)
	debate.CurrentTurn = turn
	env.debateDB.Update(debate)
	return room, debate
}

func TestAITurnPostsAndSchedulesHandoff(t *testing.T) {
	generator := &fakeGenerator{reply: "反方認為此論點不成立。"}
	env, svc := newAIPlayerEnv(t, generator)
	_, debate := seedAIDebate(env, 2) // quick 第二環節是反方申論

	err := svc.HandleAITurnTask(context.Background(), aiTurnPayload{DebateID: debate.ID, Turn: 2})
	require.NoError(t, err)

	messages, _ := env.messages.FindByDebateID(debate.ID)
	require.Len(t, messages, 1)
	assert.Equal(t, uint(testAIUserID), messages[0].UserID)
	assert.Equal(t, 2, messages[0].Turn)
	assert.Len(t, env.publisher.byName(EventDebateMessage), 1)

	// 發言完成後以停頓交棒，expectedTurn 帶當前回合
	handoffs := env.scheduler.byKind(task.KindTurnAdvance)
	require.Len(t, handoffs, 1)
	payload := handoffs[0].Payload.(turnAdvancePayload)
	assert.Equal(t, 2, payload.ExpectedTurn)
	assert.Equal(t, 2*time.Second, handoffs[0].Delay)
}

func TestAITurnSkipsHumanTurn(t *testing.T) {
	generator := &fakeGenerator{reply: "不該出現"}
	env, svc := newAIPlayerEnv(t, generator)
	_, debate := seedAIDebate(env, 1) // 第一環節是正方（人類）申論

	require.NoError(t, svc.HandleAITurnTask(context.Background(), aiTurnPayload{DebateID: debate.ID, Turn: 1}))

	assert.Zero(t, generator.calls)
	messages, _ := env.messages.FindByDebateID(debate.ID)
	assert.Empty(t, messages)
}

func TestAITurnSkipsNonAIRoom(t *testing.T) {
	generator := &fakeGenerator{reply: "不該出現"}
	env, svc := newAIPlayerEnv(t, generator)
	_, debate := env.seedQuickDebate(1, 2)
	debate.CurrentTurn = 2
	env.debateDB.Update(debate)

	require.NoError(t, svc.HandleAITurnTask(context.Background(), aiTurnPayload{DebateID: debate.ID, Turn: 2}))
	assert.Zero(t, generator.calls)
}

func TestStaleAITurnDropped(t *testing.T) {
	generator := &fakeGenerator{reply: "不該出現"}
	env, svc := newAIPlayerEnv(t, generator)
	_, debate := seedAIDebate(env, 3)

	// 排程時是第 2 環節，執行時場次已到第 3 環節
	require.NoError(t, svc.HandleAITurnTask(context.Background(), aiTurnPayload{DebateID: debate.ID, Turn: 2}))
	assert.Zero(t, generator.calls)
}

func TestAITurnSkipsPrep(t *testing.T) {
	generator := &fakeGenerator{reply: "不該出現"}
	env, svc := newAIPlayerEnv(t, generator)
	room, debate := seedAIDebate(env, 1)
	room.FormatName = ""
	room.CustomTurns = []models.TurnDefinition{
		{Name: "賽前準備", Duration: 60, Side: models.SideNone, IsPrep: true},
	}
	env.rooms.Update(room)

	require.NoError(t, svc.HandleAITurnTask(context.Background(), aiTurnPayload{DebateID: debate.ID, Turn: 1}))
	assert.Zero(t, generator.calls)
}

func TestAITurnQAOnlyRespondsToHumanTrigger(t *testing.T) {
	generator := &fakeGenerator{reply: "這是我的回應。"}
	env, svc := newAIPlayerEnv(t, generator)
	room, debate := seedAIDebate(env, 1)
	room.FormatName = ""
	room.CustomTurns = []models.TurnDefinition{
		{Name: "質詢", Duration: 120, Side: models.SideNegative, IsQA: true},
	}
	env.rooms.Update(room)
	ctx := context.Background()

	// 回合推進本身的觸發：不發言
	require.NoError(t, svc.HandleAITurnTask(ctx, aiTurnPayload{DebateID: debate.ID, Turn: 1}))
	assert.Zero(t, generator.calls)

	// 人類發言觸發：回應但不推進環節
	require.NoError(t, svc.HandleAITurnTask(ctx, aiTurnPayload{DebateID: debate.ID, Turn: 1, Reply: true}))
	assert.Equal(t, 1, generator.calls)
	messages, _ := env.messages.FindByDebateID(debate.ID)
	require.Len(t, messages, 1)
	assert.Empty(t, env.scheduler.byKind(task.KindTurnAdvance))
}

func TestAIGenerationRetriesThenSucceeds(t *testing.T) {
	generator := &fakeGenerator{reply: "第二次成功。"}
	env, svc := newAIPlayerEnv(t, generator)
	_, debate := seedAIDebate(env, 2)

	// 第一次呼叫失敗，重試後成功
	calls := 0
	svc.generator = generatorFunc(func(ctx context.Context, req ai.GenerateRequest) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("upstream timeout")
		}
		return "第二次成功。", nil
	})

	require.NoError(t, svc.HandleAITurnTask(context.Background(), aiTurnPayload{DebateID: debate.ID, Turn: 2}))
	assert.Equal(t, 2, calls)
	messages, _ := env.messages.FindByDebateID(debate.ID)
	require.Len(t, messages, 1)
	assert.Equal(t, "第二次成功。", messages[0].Content)
	assert.Len(t, env.scheduler.byKind(task.KindTurnAdvance), 1)
}

func TestAIGenerationExhaustionPostsFallbackWithoutAdvance(t *testing.T) {
	generator := &fakeGenerator{err: errors.New("service unavailable")}
	env, svc := newAIPlayerEnv(t, generator)
	_, debate := seedAIDebate(env, 2)

	require.NoError(t, svc.HandleAITurnTask(context.Background(), aiTurnPayload{DebateID: debate.ID, Turn: 2}))

	assert.Equal(t, svc.retry.MaxAttempts, generator.calls)
	messages, _ := env.messages.FindByDebateID(debate.ID)
	require.Len(t, messages, 1)
	assert.Equal(t, aiFallbackMessage, messages[0].Content)

	// 失敗路徑不自動交棒，場次停在原回合
	assert.Empty(t, env.scheduler.byKind(task.KindTurnAdvance))
	updated, _ := env.debateDB.FindByID(debate.ID)
	assert.Equal(t, 2, updated.CurrentTurn)
}

func TestAITurnForMissingDebateIsDropped(t *testing.T) {
	_, svc := newAIPlayerEnv(t, &fakeGenerator{})
	assert.NoError(t, svc.HandleAITurnTask(context.Background(), aiTurnPayload{DebateID: 404, Turn: 1}))
}

func TestBuildTranscriptMapsSidesAndTurns(t *testing.T) {
	turns := []models.TurnDefinition{
		{Name: "正方申論", Side: models.SideAffirmative, Duration: 180},
		{Name: "反方申論", Side: models.SideNegative, Duration: 180},
	}
	messages := []models.DebateMessage{
		{DebateID: 1, UserID: 1, Content: "我方主張", Turn: 1},
		{DebateID: 1, UserID: 2, Content: "我方反對", Turn: 2},
		{DebateID: 1, UserID: 2, Content: "補充", Turn: 99}, // 超出範圍的環節
	}

	entries := buildTranscript(messages, turns, 1)
	require.Len(t, entries, 3)
	assert.Equal(t, string(models.SideAffirmative), entries[0].Speaker)
	assert.Equal(t, "正方申論", entries[0].Turn)
	assert.Equal(t, string(models.SideNegative), entries[1].Speaker)
	assert.Empty(t, entries[2].Turn)
}
