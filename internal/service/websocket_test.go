package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"debate_web/internal/models"
	"debate_web/internal/task"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newWebSocketEnv(t *testing.T) (*testEnv, *WebSocketManager) {
	t.Helper()
	env := newTestEnv()
	conns := NewConnectionService(env.repos, env.debates, env.scheduler, env.publisher,
		time.Second, env.debates.logger)
	// 指向不存在的 Redis，訂閱失敗只會記 log，不影響本地客戶端管理
	dead := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return env, NewWebSocketManager(dead, conns, env.debates, zap.NewNop())
}

// 連線結束後 SendChan 必須仍可寫入：
// deliver 的快照可能在移除前取得，事後送達只能被丟棄，不能 panic
func TestConnectionTeardownLeavesSendChanOpen(t *testing.T) {
	env, m := newWebSocketEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.HandleConnection(conn, 1, models.ContextRoom, 7)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	topic := RoomTopic(7)
	require.Eventually(t, func() bool { return m.CountClients(topic) == 1 },
		2*time.Second, 5*time.Millisecond)

	m.clientsMux.RLock()
	var client *Client
	for c := range m.clients[topic] {
		client = c
	}
	m.clientsMux.RUnlock()
	require.NotNil(t, client)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return m.CountClients(topic) == 0 },
		2*time.Second, 5*time.Millisecond)

	assert.NotPanics(t, func() { client.SendChan <- []byte(`{"event":"late"}`) })
	assert.Eventually(t, func() bool {
		return len(env.scheduler.byKind(task.KindConnFinalize)) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

// 移除後的投遞是 noop，不會動到其他客戶端
func TestDeliverSkipsRemovedClient(t *testing.T) {
	_, m := newWebSocketEnv(t)

	client := &Client{
		ContextType: models.ContextRoom,
		ContextID:   9,
		SendChan:    make(chan []byte, 256),
		done:        make(chan struct{}),
	}
	m.addClient(client)
	m.removeClient(client)

	m.deliver(RoomTopic(9), []byte(`{"event":"x"}`))
	assert.Empty(t, client.SendChan)
}
