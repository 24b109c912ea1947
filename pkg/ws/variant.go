package ws

// 广播组
const (
	GroupGlobalTraffic = "traffic"
	GroupAdminLogs     = "admin-logs"
)

// GroupChanges 资源变更组
func GroupChanges(resource string) string {
	return "changes/" + resource
}

// GroupTraffic 资源流量组
func GroupTraffic(resource string) string {
	return "traffic/" + resource
}

// 端点后缀
const (
	SuffixChanges      = "/changes/websocket"
	SuffixTrafficWatch = "/traffic-watch/websocket"
	SuffixAdminLogs    = "/admin/logs/events"
	SuffixValidate     = "/websocket/validate"
)

// RegisterFunc 注册策略：返回要加入的广播组，空串表示不注册
type RegisterFunc func(Identity) string

// ShapeFunc 整形策略：在编码前改写消息
type ShapeFunc func(Message) Message

// Variant 传输变体
type Variant struct {
	Name         string
	Suffix       string
	Validator    Validator
	Register     RegisterFunc
	Shape        ShapeFunc
	ValidateOnly bool
}

// group 计算注册组，在握手时调用一次
func (v *Variant) group(id Identity) string {
	if v.Register == nil {
		return ""
	}
	return v.Register(id)
}

// shape 整形消息
func (v *Variant) shape(msg Message) Message {
	if v.Shape == nil {
		return msg
	}
	return v.Shape(msg)
}

// RegisterByResource 注册到资源变更组
func RegisterByResource(id Identity) string {
	return GroupChanges(id.ResourceName)
}

// RegisterTraffic 系统资源注册到全局流量组，其他资源注册到资源流量组
func RegisterTraffic(id Identity) string {
	if id.IsSystem() {
		return GroupGlobalTraffic
	}
	return GroupTraffic(id.ResourceName)
}

// RegisterAdminLogs 注册到管理日志组
func RegisterAdminLogs(Identity) string {
	return GroupAdminLogs
}

// FormatLogRecords 将 LogRecord 改写为 FormattedLogRecord，其他消息原样返回
func FormatLogRecords(msg Message) Message {
	if rec, ok := msg.(LogRecord); ok {
		return rec.Format()
	}
	return msg
}

// ChangesVariant 变更通知变体
func ChangesVariant(v Validator) *Variant {
	return &Variant{
		Name:      "changes",
		Suffix:    SuffixChanges,
		Validator: v,
		Register:  RegisterByResource,
	}
}

// TrafficWatchVariant 流量观察变体
func TrafficWatchVariant(v Validator) *Variant {
	return &Variant{
		Name:      "traffic-watch",
		Suffix:    SuffixTrafficWatch,
		Validator: v,
		Register:  RegisterTraffic,
	}
}

// AdminLogsVariant 管理日志变体
func AdminLogsVariant(v Validator) *Variant {
	return &Variant{
		Name:      "admin-logs",
		Suffix:    SuffixAdminLogs,
		Validator: v,
		Register:  RegisterAdminLogs,
		Shape:     FormatLogRecords,
	}
}

// ValidateVariant 仅验证变体
func ValidateVariant(v Validator) *Variant {
	return &Variant{
		Name:         "validate",
		Suffix:       SuffixValidate,
		Validator:    v,
		ValidateOnly: true,
	}
}
