package ws

// Publisher 面向事件源的发布接口
type Publisher struct {
	registry *Registry
}

// NewPublisher 创建发布器
func NewPublisher(registry *Registry) *Publisher {
	return &Publisher{registry: registry}
}

// PublishChange 向资源变更组发布变更通知
func (p *Publisher) PublishChange(resource string, n ChangeNotification) int {
	return p.registry.Broadcast(GroupChanges(resource), NewChangeNotification(n))
}

// PublishTrace 发布流量追踪：资源流量组与全局流量组各投递一份
func (p *Publisher) PublishTrace(resource string, t TrafficTrace) int {
	if t.ResourceName == "" {
		t.ResourceName = resource
	}
	msg := NewTrafficNotification(t)
	n := p.registry.Broadcast(GroupGlobalTraffic, msg)
	if resource != "" && resource != SystemResource {
		n += p.registry.Broadcast(GroupTraffic(resource), msg)
	}
	return n
}

// PublishLog 向管理日志组发布日志
func (p *Publisher) PublishLog(rec LogRecord) int {
	return p.registry.Broadcast(GroupAdminLogs, rec)
}

// Publish 向任意组发布消息
func (p *Publisher) Publish(group string, msg Message) int {
	return p.registry.Broadcast(group, msg)
}
