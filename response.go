package eventpush

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/eventpush/pkg/logger"
)

// Response /healthz 和 /stats 的响应体
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// Health 健康检查数据
type Health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// respond 写出 JSON 响应，请求带有 trace 时回填 trace_id
func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, &Response{
		Code:    status,
		Data:    data,
		Message: message,
		TraceID: logger.TraceIDFromContext(c.Request.Context()),
	})
}

func success(c *gin.Context, data any) {
	respond(c, http.StatusOK, data, "success")
}
