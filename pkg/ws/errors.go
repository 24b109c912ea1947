package ws

import "errors"

// 错误定义
var (
	// 连接相关错误
	ErrTooManyConnections = errors.New("ws: too many connections")
	ErrConnExists         = errors.New("ws: connection id already exists")
	ErrTransportClosed    = errors.New("ws: transport closed")
	ErrNotSetup           = errors.New("ws: transport not set up")
	ErrAlreadyRunning     = errors.New("ws: transport already running")

	// 路由相关错误
	ErrUnknownEndpoint = errors.New("ws: unknown endpoint")
	ErrVariantExists   = errors.New("ws: variant already registered")
	ErrRouterFrozen    = errors.New("ws: router is frozen")

	// 生命周期
	ErrManagerClosed = errors.New("ws: manager closed")

	// 配置相关错误
	ErrInvalidConfig = errors.New("ws: invalid config")
)
