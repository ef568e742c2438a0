package models

import (
	"time"

	"gorm.io/gorm"
)

// ConnectionContext 定義連線記錄所屬的上下文
type ConnectionContext string

const (
	ContextRoom   ConnectionContext = "room"
	ContextDebate ConnectionContext = "debate"
)

// ConnectionStatus 定義連線狀態
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// ConnectionLog 表示一筆連線狀態記錄，只增不改
// (UserID, ContextType, ContextID) 的「當前狀態」定義為其最新一筆記錄的狀態
type ConnectionLog struct {
	gorm.Model
	UserID      uint              `gorm:"index:idx_conn_user_ctx"`
	ContextType ConnectionContext `gorm:"index:idx_conn_user_ctx"`
	ContextID   uint              `gorm:"index:idx_conn_user_ctx"`
	Status      ConnectionStatus
	Timestamp   time.Time
}
