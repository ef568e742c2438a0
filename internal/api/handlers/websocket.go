package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"debate_web/internal/models"
	"debate_web/internal/service"
)

// 定義 WebSocket 升級器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 注意：在生產環境中，應該檢查 origin
	},
}

// WebSocketHandler 處理 WebSocket 連接
type WebSocketHandler struct {
	wsManager     *service.WebSocketManager
	roomService   *service.RoomService
	debateService *service.DebateService
}

// NewWebSocketHandler 創建一個新的 WebSocketHandler 實例
func NewWebSocketHandler(wsManager *service.WebSocketManager, roomService *service.RoomService, debateService *service.DebateService) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:     wsManager,
		roomService:   roomService,
		debateService: debateService,
	}
}

// HandleRoom 處理房間上下文的 WebSocket 連接請求
func (h *WebSocketHandler) HandleRoom(c *gin.Context) {
	roomID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的房間ID"})
		return
	}

	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	room, err := h.roomService.GetRoom(roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "房間不存在"})
		return
	}
	if !isRoomMember(room, userID.(uint)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "用戶未加入此房間"})
		return
	}

	h.serve(c, userID.(uint), models.ContextRoom, roomID)
}

// HandleDebate 處理場次上下文的 WebSocket 連接請求
func (h *WebSocketHandler) HandleDebate(c *gin.Context) {
	debateID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的場次ID"})
		return
	}

	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	debate, err := h.debateService.GetDebate(debateID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "場次不存在"})
		return
	}
	room, err := h.roomService.GetRoom(debate.RoomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "房間不存在"})
		return
	}
	if !isRoomMember(room, userID.(uint)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "用戶未加入此房間"})
		return
	}

	h.serve(c, userID.(uint), models.ContextDebate, debateID)
}

// serve 升級 HTTP 連接為 WebSocket 連接並交給管理器
func (h *WebSocketHandler) serve(c *gin.Context, userID uint, ctxType models.ConnectionContext, ctxID uint) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "升級WebSocket失敗"})
		return
	}

	h.wsManager.HandleConnection(conn, userID, ctxType, ctxID)
}

// isRoomMember 檢查用戶是否為房間的辯手或觀眾
func isRoomMember(room *models.Room, userID uint) bool {
	if room.IsParticipant(userID) || room.CreatorID == userID {
		return true
	}
	for _, spectatorID := range room.Spectators {
		if spectatorID == userID {
			return true
		}
	}
	return false
}
