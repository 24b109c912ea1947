package ws

import (
	"context"
	"net/url"
)

// SystemResource 系统资源名
const SystemResource = "<system>"

// Resource 已解析的逻辑资源
type Resource interface {
	Name() string
	Kind() ResourceKind
}

// Identity 握手验证通过后的身份
type Identity struct {
	ID           string   // 订阅 ID，为空时由传输层分配
	Resource     Resource // 资源句柄
	ResourceName string
}

// IsSystem 是否为系统资源
func (i Identity) IsSystem() bool {
	return i.ResourceName == SystemResource
}

// Validator 握手验证器
//
// 失败时返回 *errors.Error，其 HttpCode 作为响应状态码；
// 其他错误按 500 处理。
type Validator interface {
	Validate(ctx context.Context, uri *url.URL, token string) (Identity, error)
}

// ValidatorFunc 函数形式的 Validator
type ValidatorFunc func(ctx context.Context, uri *url.URL, token string) (Identity, error)

// Validate 实现 Validator
func (f ValidatorFunc) Validate(ctx context.Context, uri *url.URL, token string) (Identity, error) {
	return f(ctx, uri, token)
}
