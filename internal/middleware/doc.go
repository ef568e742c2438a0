// Package middleware 提供 HTTP 請求處理的中間件。
//
// 目前只有 JWT 驗證：解析 Authorization 標頭並把 userID 放進請求上下文，
// 所有需要登入的路由都掛在它後面。
package middleware
