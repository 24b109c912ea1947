package ws

import (
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// CloseNormalCode 正常关闭码
	CloseNormalCode = websocket.CloseNormalClosure
	// CloseNormalReason 正常关闭原因，仅此组合会被回显
	CloseNormalReason = "CLOSE_NORMAL"
)

// Conn 已升级的 WebSocket 连接
//
// *websocket.Conn 直接满足该接口。WriteMessage 只由发送循环调用，
// WriteControl 可与其他方法并发调用。
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetCloseHandler(h func(code int, text string) error)
	RemoteAddr() net.Addr
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// isNormalClose 是否为 1000 / "CLOSE_NORMAL" 关闭帧
func isNormalClose(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) && ce.Code == CloseNormalCode && ce.Text == CloseNormalReason
}

// ackClose 回显正常关闭帧
func ackClose(conn Conn, wait time.Duration) error {
	msg := websocket.FormatCloseMessage(CloseNormalCode, CloseNormalReason)
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait))
}

// suppressCloseEcho 关闭默认的关闭帧回显，由接收循环决定是否确认
func suppressCloseEcho(conn Conn) {
	conn.SetCloseHandler(func(int, string) error { return nil })
}
