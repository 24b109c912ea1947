package ws

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Upgrader 包装 websocket.Upgrader，握手失败时以 {"Error": ...} 响应
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader 创建升级器
func NewUpgrader(config UpgraderConfig, handshakeTimeout time.Duration) *Upgrader {
	check := config.CheckOrigin
	switch {
	case check != nil:
	case len(config.AllowedOrigins) > 0:
		check = allowOrigins(config.AllowedOrigins)
	default:
		check = sameOrigin
	}

	return &Upgrader{
		upgrader: websocket.Upgrader{
			HandshakeTimeout:  handshakeTimeout,
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			CheckOrigin:       check,
			EnableCompression: config.EnableCompression,
			Error: func(w http.ResponseWriter, _ *http.Request, status int, reason error) {
				writeError(w, status, reason.Error())
			},
		},
	}
}

// Upgrade 升级为 websocket 连接
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return u.upgrader.Upgrade(w, r, nil)
}

// sameOrigin 非浏览器客户端不带 Origin，放行；浏览器请求要求 Origin 的 host 与请求一致
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// allowOrigins 按白名单匹配 scheme://host，"*." 开头的 host 匹配任意一级及多级子域名
func allowOrigins(patterns []string) func(*http.Request) bool {
	exact := make(map[string]struct{}, len(patterns))
	var wildcards []string // scheme://.example.com
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSuffix(p, "/"))
		if scheme, host, ok := strings.Cut(p, "://*."); ok {
			wildcards = append(wildcards, scheme+"://."+host)
			continue
		}
		exact[p] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := strings.ToLower(r.Header.Get("Origin"))
		if origin == "" {
			return false
		}
		if _, ok := exact[origin]; ok {
			return true
		}
		scheme, host, ok := strings.Cut(origin, "://")
		if !ok {
			return false
		}
		for _, w := range wildcards {
			wscheme, suffix, _ := strings.Cut(w, "://")
			if wscheme == scheme && strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
				return true
			}
		}
		return false
	}
}
