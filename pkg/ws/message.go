package ws

import (
	"time"
)

// Message 出站消息
//
// 封闭集合：只有本包内的 Heartbeat、Status、LogRecord、FormattedLogRecord
// 和 Notification 实现该接口。
type Message interface {
	// Kind 消息类别，用于指标与日志
	Kind() string
	message()
}

// Heartbeat 心跳
type Heartbeat struct {
	Type string    `json:"Type"`
	Time time.Time `json:"Time"`
}

// NewHeartbeat 创建心跳
func NewHeartbeat(now time.Time) Heartbeat {
	return Heartbeat{Type: "Heartbeat", Time: now.UTC()}
}

func (Heartbeat) Kind() string { return "Heartbeat" }
func (Heartbeat) message()     {}

// Status 验证结果消息
type Status struct {
	StatusCode    int       `json:"StatusCode"`
	StatusMessage string    `json:"StatusMessage"`
	Time          time.Time `json:"Time"`
}

func (Status) Kind() string { return "Status" }
func (Status) message()     {}

// LogRecord 结构化日志记录
type LogRecord struct {
	Time    time.Time      `json:"Time"`
	Level   LogLevel       `json:"Level"`
	Logger  string         `json:"Logger,omitempty"`
	Message string         `json:"Message"`
	Caller  string         `json:"Caller,omitempty"`
	Stack   string         `json:"Stack,omitempty"`
	Fields  map[string]any `json:"Fields,omitempty"`
}

func (LogRecord) Kind() string { return "LogRecord" }
func (LogRecord) message()     {}

// Format 转换为面向客户端的格式化记录
func (r LogRecord) Format() FormattedLogRecord {
	f := FormattedLogRecord{
		TimeStamp:  r.Time.UTC(),
		Level:      r.Level,
		LoggerName: r.Logger,
		Message:    r.Message,
		StackTrace: r.Stack,
	}
	if v, ok := r.Fields["error"]; ok {
		if s, ok := v.(string); ok {
			f.Exception = s
		}
	}
	if len(r.Fields) > 0 {
		f.Properties = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			if k == "error" {
				continue
			}
			f.Properties[k] = v
		}
		if len(f.Properties) == 0 {
			f.Properties = nil
		}
	}
	return f
}

// FormattedLogRecord 管理日志通道下发的日志格式
type FormattedLogRecord struct {
	TimeStamp  time.Time      `json:"TimeStamp"`
	Level      LogLevel       `json:"Level"`
	LoggerName string         `json:"LoggerName"`
	Message    string         `json:"Message"`
	Exception  string         `json:"Exception,omitempty"`
	StackTrace string         `json:"StackTrace,omitempty"`
	Properties map[string]any `json:"Properties,omitempty"`
}

func (FormattedLogRecord) Kind() string { return "FormattedLogRecord" }
func (FormattedLogRecord) message()     {}

// Notification 业务通知，Type 为负载类型名
type Notification struct {
	Type  string `json:"Type"`
	Value any    `json:"Value"`
}

func (n Notification) Kind() string { return n.Type }
func (Notification) message()       {}
