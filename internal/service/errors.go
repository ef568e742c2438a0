package service

import "errors"

// 前置條件違反時回傳的錯誤
// 這類錯誤代表呼叫者的動作被拒絕，與基礎設施故障分開處理
var (
	ErrNotEligible     = errors.New("不符合提出提前結束的條件")
	ErrNoActiveRequest = errors.New("目前沒有進行中的提前結束請求")
	ErrSelfResponse    = errors.New("不能回應自己提出的請求")
	ErrNotSpeaker      = errors.New("現在不是你的發言環節")
	ErrInvalidState    = errors.New("房間狀態不允許此操作")
	ErrRoleTaken       = errors.New("該立場已被占用")
	ErrInvalidRole     = errors.New("無效的角色")
	ErrNotInRoom       = errors.New("用戶未加入此房間")

	ErrUsernameTaken      = errors.New("用戶名已被使用")
	ErrInvalidCredentials = errors.New("用戶名或密碼錯誤")
)
