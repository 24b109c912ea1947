// Package etag 实现资源版本令牌（Etag）。
//
// Etag 由重启计数与变更计数组成，按字典序全序比较；文本形式为
// 8-4-4-4-12 分组的 32 位十六进制串，例如 "01000000-0000-0001-0000-000000000007"。
// 实现 encoding.TextMarshaler，任何 JSON 编码器都会得到相同的线上格式。
package etag

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidEtag 无法解析的 Etag 文本
var ErrInvalidEtag = errors.New("etag: invalid format")

// Etag 版本令牌
type Etag struct {
	restarts int64
	changes  int64
}

// Empty 零值令牌
var Empty = Etag{}

// New 创建 Etag
func New(restarts, changes int64) Etag {
	return Etag{restarts: restarts, changes: changes}
}

// Restarts 重启计数
func (e Etag) Restarts() int64 { return e.restarts }

// Changes 变更计数
func (e Etag) Changes() int64 { return e.changes }

// IsZero 是否为零值
func (e Etag) IsZero() bool { return e == Empty }

// Increment 变更计数加一
func (e Etag) Increment() Etag {
	return e.IncrementBy(1)
}

// IncrementBy 变更计数加 n
func (e Etag) IncrementBy(n int64) Etag {
	return Etag{restarts: e.restarts, changes: e.changes + n}
}

// Compare 比较两个 Etag：-1 / 0 / 1
func (e Etag) Compare(other Etag) int {
	switch {
	case e.restarts < other.restarts:
		return -1
	case e.restarts > other.restarts:
		return 1
	case e.changes < other.changes:
		return -1
	case e.changes > other.changes:
		return 1
	default:
		return 0
	}
}

// Bytes 大端序 16 字节表示
func (e Etag) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], uint64(e.restarts))
	binary.BigEndian.PutUint64(b[8:], uint64(e.changes))
	return b
}

// String 返回规范文本形式
func (e Etag) String() string {
	b := e.Bytes()
	h := hex.EncodeToString(b[:])
	var sb strings.Builder
	sb.Grow(36)
	sb.WriteString(h[0:8])
	sb.WriteByte('-')
	sb.WriteString(h[8:12])
	sb.WriteByte('-')
	sb.WriteString(h[12:16])
	sb.WriteByte('-')
	sb.WriteString(h[16:20])
	sb.WriteByte('-')
	sb.WriteString(h[20:32])
	return strings.ToUpper(sb.String())
}

// Parse 解析文本形式，接受带或不带分隔符的 32 位十六进制串
func Parse(s string) (Etag, error) {
	raw := strings.ReplaceAll(s, "-", "")
	if len(raw) != 32 {
		return Empty, ErrInvalidEtag
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Empty, ErrInvalidEtag
	}
	return Etag{
		restarts: int64(binary.BigEndian.Uint64(b[:8])),
		changes:  int64(binary.BigEndian.Uint64(b[8:])),
	}, nil
}

// MustParse 解析失败时 panic，仅用于常量与测试
func MustParse(s string) Etag {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

// MarshalText 实现 encoding.TextMarshaler
func (e Etag) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (e *Etag) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
