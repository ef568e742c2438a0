package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"debate_web/internal/models"
)

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	Conn        *websocket.Conn
	UserID      uint
	ContextType models.ConnectionContext // room 或 debate
	ContextID   uint
	SendChan    chan []byte   // 消息發送通道，用於異步傳送消息；只放不關
	done        chan struct{} // 關閉時通知 writePump 退出
}

// Topic 回傳這個連線訂閱的事件主題
func (c *Client) Topic() string {
	if c.ContextType == models.ContextDebate {
		return DebateTopic(c.ContextID)
	}
	return RoomTopic(c.ContextID)
}

// clientMessage 是客戶端透過 WebSocket 送上來的消息
type clientMessage struct {
	Type    string `json:"type"` // "speech" 或 "heartbeat"
	Content string `json:"content,omitempty"`
}

// WebSocketManager 管理所有的 WebSocket 連接和消息傳遞
// 每個主題第一個客戶端進來時訂閱對應的 Redis 頻道，
// 事件因此能跨實例到達所有客戶端
type WebSocketManager struct {
	clients    map[string]map[*Client]bool // 兩層 map: topic -> client -> bool
	subs       map[string]func()           // 每個主題的 Redis 訂閱取消函數
	clientsMux sync.RWMutex

	redis   *redis.Client
	conns   *ConnectionService
	debates *DebateService
	logger  *zap.Logger
}

// NewWebSocketManager 創建並初始化新的 WebSocket 管理器
func NewWebSocketManager(redisClient *redis.Client, conns *ConnectionService, debates *DebateService, logger *zap.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients: make(map[string]map[*Client]bool),
		subs:    make(map[string]func()),
		redis:   redisClient,
		conns:   conns,
		debates: debates,
		logger:  logger,
	}
}

// HandleConnection 處理新的 WebSocket 連接請求
// 連線即記一筆心跳，連線結束交給斷線調解器排程終局判定
func (m *WebSocketManager) HandleConnection(conn *websocket.Conn, userID uint, ctxType models.ConnectionContext, ctxID uint) {
	client := &Client{
		Conn:        conn,
		UserID:      userID,
		ContextType: ctxType,
		ContextID:   ctxID,
		SendChan:    make(chan []byte, 256),
		done:        make(chan struct{}),
	}

	ctx := context.Background()
	if err := m.conns.Heartbeat(ctx, userID, ctxType, ctxID); err != nil {
		m.logger.Warn("connect heartbeat failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	m.addClient(client)

	// 確保連接關閉時清理資源
	// SendChan 不關閉：deliver 可能還握有移除前的客戶端快照，
	// 往緩衝裡多塞的消息只會被丟棄，writePump 由 done 通知退出
	defer func() {
		m.removeClient(client)
		conn.Close()
		close(client.done)
		m.conns.OnPresenceLost(ctx, userID, ctxType, ctxID)
	}()

	go m.writePump(client)
	m.readPump(client)
}

// readPump 持續監聽並處理從客戶端接收的消息
func (m *WebSocketManager) readPump(client *Client) {
	ctx := context.Background()
	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		// pong 就是心跳，刷新 (user, context) 的連線狀態
		if err := m.conns.Heartbeat(ctx, client.UserID, client.ContextType, client.ContextID); err != nil {
			m.logger.Warn("pong heartbeat failed", zap.Uint("user_id", client.UserID), zap.Error(err))
		}
		return nil
	})

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("websocket unexpected close", zap.Error(err))
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			m.logger.Debug("client message parse error", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "heartbeat":
			if err := m.conns.Heartbeat(ctx, client.UserID, client.ContextType, client.ContextID); err != nil {
				m.logger.Warn("heartbeat failed", zap.Uint("user_id", client.UserID), zap.Error(err))
			}
		case "speech":
			if client.ContextType != models.ContextDebate {
				continue
			}
			if _, err := m.debates.PostMessage(ctx, client.ContextID, client.UserID, msg.Content); err != nil {
				m.sendError(client, err)
			}
		}
	}
}

// writePump 處理向客戶端發送消息的邏輯
func (m *WebSocketManager) writePump(client *Client) {
	// 心跳計時器，間隔短於讀取期限
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-client.SendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver 把一則事件送給主題下的所有本地客戶端
func (m *WebSocketManager) deliver(topic string, raw []byte) {
	m.clientsMux.RLock()
	clients := make([]*Client, 0, len(m.clients[topic]))
	for client := range m.clients[topic] {
		clients = append(clients, client)
	}
	m.clientsMux.RUnlock()

	for _, client := range clients {
		select {
		case client.SendChan <- raw:
		default:
			// 客戶端消息隊列已滿，關閉連接
			m.removeClient(client)
			client.Conn.Close()
		}
	}
}

func (m *WebSocketManager) sendError(client *Client, err error) {
	body, marshalErr := json.Marshal(map[string]string{"event": "error", "message": err.Error()})
	if marshalErr != nil {
		return
	}
	select {
	case client.SendChan <- body:
	default:
	}
}

// addClient 安全地添加新的客戶端連接
// 主題的第一個客戶端負責建立 Redis 訂閱
func (m *WebSocketManager) addClient(client *Client) {
	topic := client.Topic()

	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	if m.clients[topic] == nil {
		m.clients[topic] = make(map[*Client]bool)
		if cancel, err := m.subscribe(topic); err != nil {
			m.logger.Error("topic subscribe failed", zap.String("topic", topic), zap.Error(err))
		} else {
			m.subs[topic] = cancel
		}
	}
	m.clients[topic][client] = true
}

// removeClient 安全地移除客戶端連接
func (m *WebSocketManager) removeClient(client *Client) {
	topic := client.Topic()

	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	if clients, ok := m.clients[topic]; ok {
		delete(clients, client)
		// 主題下已無客戶端時取消訂閱
		if len(clients) == 0 {
			delete(m.clients, topic)
			if cancel, ok := m.subs[topic]; ok {
				cancel()
				delete(m.subs, topic)
			}
		}
	}
}

// subscribe 訂閱 Redis 頻道並把事件轉送給本地客戶端
func (m *WebSocketManager) subscribe(topic string) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := m.redis.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		return nil, err
	}

	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				m.deliver(topic, []byte(msg.Payload))
			}
		}
	}()
	return cancel, nil
}

// CountClients 獲取指定主題目前的在線客戶端數量
func (m *WebSocketManager) CountClients(topic string) int {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()
	return len(m.clients[topic])
}
