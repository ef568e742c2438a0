package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"debate_web/internal/models"
	"debate_web/internal/service"
)

// DebateHandler 處理進行中場次的請求：發言、結束發言、提前結束協商與評審結果
type DebateHandler struct {
	debateService      *service.DebateService
	terminationService *service.TerminationService
	evaluationService  *service.EvaluationService
	connectionService  *service.ConnectionService
}

func NewDebateHandler(debateService *service.DebateService, terminationService *service.TerminationService, evaluationService *service.EvaluationService, connectionService *service.ConnectionService) *DebateHandler {
	return &DebateHandler{
		debateService:      debateService,
		terminationService: terminationService,
		evaluationService:  evaluationService,
		connectionService:  connectionService,
	}
}

// GetDebate 處理獲取場次資訊的請求
func (h *DebateHandler) GetDebate(c *gin.Context) {
	debateID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的場次ID"})
		return
	}

	debate, err := h.debateService.GetDebate(debateID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "場次不存在"})
		return
	}
	c.JSON(http.StatusOK, debate)
}

// EndSpeech 當前發言者手動結束自己的環節
func (h *DebateHandler) EndSpeech(c *gin.Context) {
	debateID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的場次ID"})
		return
	}

	userID, _ := c.Get("userID")
	outcome, err := h.debateService.EndSpeech(c.Request.Context(), debateID, userID.(uint))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": string(outcome)})
}

// PostMessage 在當前環節發言
func (h *DebateHandler) PostMessage(c *gin.Context) {
	debateID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的場次ID"})
		return
	}

	var input struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := c.Get("userID")
	message, err := h.debateService.PostMessage(c.Request.Context(), debateID, userID.(uint), input.Content)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, message)
}

// GetMessages 取回場次的完整發言記錄
func (h *DebateHandler) GetMessages(c *gin.Context) {
	debateID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的場次ID"})
		return
	}

	messages, err := h.debateService.Messages(debateID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "無法搜尋辯論訊息"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// ProposeTermination 提出提前結束請求
func (h *DebateHandler) ProposeTermination(c *gin.Context) {
	debateID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的場次ID"})
		return
	}

	userID, _ := c.Get("userID")
	if err := h.terminationService.Propose(c.Request.Context(), debateID, userID.(uint)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已送出提前結束請求"})
}

// RespondTermination 回應提前結束請求
func (h *DebateHandler) RespondTermination(c *gin.Context) {
	debateID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的場次ID"})
		return
	}

	var input struct {
		Agree *bool `json:"agree" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := c.Get("userID")
	if err := h.terminationService.Respond(c.Request.Context(), debateID, userID.(uint), *input.Agree); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已回應提前結束請求"})
}

// GetTerminationStatus 查詢協商狀態與當前用戶的可行動作
func (h *DebateHandler) GetTerminationStatus(c *gin.Context) {
	debateID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的場次ID"})
		return
	}

	userID, _ := c.Get("userID")
	ctx := c.Request.Context()

	status, err := h.terminationService.Status(ctx, debateID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "無法查詢協商狀態"})
		return
	}
	canPropose, _ := h.terminationService.CanPropose(ctx, debateID, userID.(uint))
	canRespond, _ := h.terminationService.CanRespond(ctx, debateID, userID.(uint))

	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"can_propose": canPropose,
		"can_respond": canRespond,
	})
}

// GetEvaluation 取得場次的評審結果
func (h *DebateHandler) GetEvaluation(c *gin.Context) {
	debateID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不存在的場次ID"})
		return
	}

	evaluation, err := h.evaluationService.GetEvaluation(debateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "評審結果尚未產生"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "無法取得評審結果"})
		return
	}
	c.JSON(http.StatusOK, evaluation)
}

// Heartbeat 記錄一筆連線心跳
func (h *DebateHandler) Heartbeat(c *gin.Context) {
	var input struct {
		ContextType string `json:"context_type" binding:"required"`
		ContextID   uint   `json:"context_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctxType := models.ConnectionContext(input.ContextType)
	if ctxType != models.ContextRoom && ctxType != models.ContextDebate {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的連線上下文"})
		return
	}

	userID, _ := c.Get("userID")
	if err := h.connectionService.Heartbeat(c.Request.Context(), userID.(uint), ctxType, input.ContextID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "心跳記錄失敗"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}
