package ws

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// 请求参数名
const (
	QueryID       = "id"
	QueryCooldown = "coolDownWithDataLoss"
	QueryToken    = "singleUseAuthToken"
)

// newConnID 生成连接 ID
func newConnID() string {
	return uuid.NewString()
}

// parseCooldown 解析冷却时间（毫秒），无法解析或为负数时返回 0
func parseCooldown(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// errorBody 握手失败响应体
type errorBody struct {
	Error string `json:"Error"`
}

// writeError 写入 {"Error": message} 错误响应
func writeError(w http.ResponseWriter, status int, message string) {
	body, err := json.Marshal(errorBody{Error: message})
	if err != nil {
		body = []byte(`{"Error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
