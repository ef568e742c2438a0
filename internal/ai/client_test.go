package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"裸 JSON", `{"winner":"none"}`, `{"winner":"none"}`},
		{"markdown 圍欄", "```json\n{\"winner\":\"affirmative\"}\n```", `{"winner":"affirmative"}`},
		{"前後帶說明文字", "評審結果如下：{\"winner\":\"negative\"} 以上。", `{"winner":"negative"}`},
		{"完全不是 JSON", "無法評審", "無法評審"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

func TestGenerateSendsBearerAndParsesReply(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"反方認為不然。"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model", time.Second)
	content, err := client.Generate(context.Background(), GenerateRequest{
		Topic:    "科技是否讓生活更好",
		Side:     "negative",
		TurnName: "反方申論",
		Transcript: []TranscriptEntry{
			{Speaker: "affirmative", Turn: "正方申論", Content: "我方主張"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "反方認為不然。", content)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestEvaluateParsesFencedVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` +
			"```json\\n{\\\"analyzable\\\":true,\\\"winner\\\":\\\"affirmative\\\",\\\"analysis\\\":\\\"正方較佳\\\"}\\n```" +
			`"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", "m", time.Second)
	verdict, err := client.Evaluate(context.Background(), "題目", nil)
	require.NoError(t, err)
	assert.True(t, verdict.Analyzable)
	assert.Equal(t, "affirmative", verdict.Winner)
}

func TestChatErrorPaths(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"非 200 狀態", http.StatusBadGateway, "upstream error"},
		{"服務端錯誤欄位", http.StatusOK, `{"error":{"message":"rate limited"}}`},
		{"空的選項", http.StatusOK, `{"choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "k", "m", time.Second)
			_, err := client.Generate(context.Background(), GenerateRequest{Topic: "題目"})
			assert.Error(t, err)
		})
	}
}
