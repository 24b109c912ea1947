package bridge

import "errors"

var (
	// ErrUnknownKind 信封 kind 不支持
	ErrUnknownKind = errors.New("bridge: unknown envelope kind")
	// ErrMissingResource change 信封缺少资源名
	ErrMissingResource = errors.New("bridge: change envelope requires a resource")
	// ErrMalformed 信封或负载无法解码
	ErrMalformed = errors.New("bridge: malformed envelope")
	// ErrSourceClosed 源的投递通道被关闭
	ErrSourceClosed = errors.New("bridge: source channel closed")
)
