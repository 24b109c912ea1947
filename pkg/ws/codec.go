package ws

import (
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Codec 消息编码器
//
// 每条消息独立编码，编码器不在消息之间保留状态。
type Codec interface {
	Encode(msg Message) ([]byte, error)
	// FrameType 写入时使用的 WebSocket 帧类型
	FrameType() int
}

// JSONCodec 默认 JSON 编码器
//
// Etag 与各枚举通过 encoding.TextMarshaler 编码为字符串，
// 与桥接层解码使用的类型一致。
type JSONCodec struct{}

// Encode 编码消息
func (JSONCodec) Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// FrameType 文本帧
func (JSONCodec) FrameType() int {
	return websocket.TextMessage
}

// DefaultCodec 默认编码器
var DefaultCodec Codec = JSONCodec{}
