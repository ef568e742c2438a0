// Package api 定義 HTTP 路由並把請求轉交給服務層。
//
// handlers 子包內是各資源的處理器：認證、房間、場次與 WebSocket 升級。
// 處理器只做輸入解析與權限前置檢查，辯論流程的規則都在 service 層。
package api
