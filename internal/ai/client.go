package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TranscriptEntry 是傳給 AI 服務的逐字稿條目
type TranscriptEntry struct {
	Speaker string `json:"speaker"` // "affirmative" / "negative"
	Turn    string `json:"turn"`
	Content string `json:"content"`
}

// GenerateRequest 描述一次 AI 發言請求
type GenerateRequest struct {
	Topic      string
	Side       string // AI 所屬立場
	TurnName   string // 當前環節名稱
	Transcript []TranscriptEntry
}

// Verdict 是評審服務的回覆
type Verdict struct {
	Analyzable          bool   `json:"analyzable"`
	Winner              string `json:"winner"` // "affirmative" / "negative" / "none"
	Analysis            string `json:"analysis"`
	Reason              string `json:"reason"`
	FeedbackAffirmative string `json:"feedback_affirmative"`
	FeedbackNegative    string `json:"feedback_negative"`
}

// Generator 產生 AI 參與者的發言
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Judge 對完整逐字稿做出評審
type Judge interface {
	Evaluate(ctx context.Context, topic string, transcript []TranscriptEntry) (*Verdict, error)
}

// Client 是 OpenAI 相容 chat completions 端點的客戶端
// 同時實作 Generator 與 Judge
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate 以逐字稿為上下文產生下一段發言
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "辯題：%s\n你是%s，現在進行「%s」環節。根據目前的逐字稿發表你的發言。\n\n", req.Topic, sideLabel(req.Side), req.TurnName)
	for _, entry := range req.Transcript {
		fmt.Fprintf(&sb, "[%s｜%s] %s\n", sideLabel(entry.Speaker), entry.Turn, entry.Content)
	}

	return c.chat(ctx, []chatMessage{
		{Role: "system", Content: "你是一位正式辯論比賽的辯手，發言需緊扣辯題並回應對方論點。"},
		{Role: "user", Content: sb.String()},
	})
}

// Evaluate 要求評審服務回覆固定結構的 JSON 並解析
func (c *Client) Evaluate(ctx context.Context, topic string, transcript []TranscriptEntry) (*Verdict, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "辯題：%s\n以下是完整逐字稿，請評審這場辯論。\n\n", topic)
	for _, entry := range transcript {
		fmt.Fprintf(&sb, "[%s｜%s] %s\n", sideLabel(entry.Speaker), entry.Turn, entry.Content)
	}
	sb.WriteString("\n請只輸出 JSON，欄位：analyzable, winner(affirmative/negative/none), analysis, reason, feedback_affirmative, feedback_negative。")

	content, err := c.chat(ctx, []chatMessage{
		{Role: "system", Content: "你是一位正式辯論比賽的評審，判準為論點完整度與交鋒品質。"},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return nil, err
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(extractJSON(content)), &verdict); err != nil {
		return nil, fmt.Errorf("judge response parse error: %v", err)
	}
	return &verdict, nil
}

func (c *Client) chat(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai service status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", err
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("ai service error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("ai service returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// extractJSON 去掉模型偶爾包在 JSON 外的 markdown 圍欄
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}

func sideLabel(side string) string {
	switch side {
	case "affirmative":
		return "正方"
	case "negative":
		return "反方"
	}
	return side
}
