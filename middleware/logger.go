package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/eventpush/pkg/logger"
)

// LoggerConfig 访问日志配置
type LoggerConfig struct {
	ExcludePaths []string // 不记录的路径，通常是探活接口
}

// Logger 访问日志。websocket 握手在升级完成或被拒绝时记录一条，连接的后续生命周期由传输层记录。
//
// 级别按结果区分：5xx 为 Error，4xx 为 Warn，其余为 Info。
func Logger(log logger.Logger, cfg *LoggerConfig) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	skip := make(map[string]struct{})
	if cfg != nil {
		for _, p := range cfg.ExcludePaths {
			skip[p] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		msg := "request completed"
		if c.IsWebsocket() {
			msg = "handshake rejected"
			if status == http.StatusSwitchingProtocols {
				msg = "websocket upgraded"
			}
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.ErrorContext(ctx, msg, fields...)
		case status >= 400:
			log.WarnContext(ctx, msg, fields...)
		default:
			log.InfoContext(ctx, msg, fields...)
		}
	}
}
