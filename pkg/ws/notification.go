package ws

import (
	"time"

	"github.com/tokmz/eventpush/pkg/etag"
)

// 通知负载类型名
const (
	TypeChangeNotification = "ChangeNotification"
	TypeTrafficTrace       = "TrafficTrace"
)

// ChangeNotification 文档变更通知
type ChangeNotification struct {
	Type           ChangeType `json:"Type"`
	ID             string     `json:"Id"`
	CollectionName string     `json:"CollectionName,omitempty"`
	Etag           etag.Etag  `json:"Etag"`
	Message        string     `json:"Message,omitempty"`
}

// TrafficTrace 单次 HTTP 请求的流量追踪
type TrafficTrace struct {
	ResourceName string    `json:"ResourceName"`
	Method       string    `json:"HttpMethod"`
	URL          string    `json:"RequestUri"`
	StatusCode   int       `json:"ResponseStatusCode"`
	ElapsedMs    int64     `json:"ElapsedMilliseconds"`
	At           time.Time `json:"At"`
	RequestID    string    `json:"RequestId,omitempty"`
	CustomInfo   string    `json:"CustomInfo,omitempty"`
}

// NewChangeNotification 包装变更通知
func NewChangeNotification(n ChangeNotification) Notification {
	return Notification{Type: TypeChangeNotification, Value: n}
}

// NewTrafficNotification 包装流量追踪
func NewTrafficNotification(t TrafficTrace) Notification {
	return Notification{Type: TypeTrafficTrace, Value: t}
}
