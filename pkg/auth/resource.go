package auth

import (
	"net/url"
	"strings"

	"github.com/tokmz/eventpush/pkg/ws"
)

// 路径前缀与资源类型的对应关系
var prefixKinds = map[string]ws.ResourceKind{
	"databases": ws.KindDatabase,
	"fs":        ws.KindFileSystem,
	"counters":  ws.KindCounters,
}

// Resource 逻辑资源
type Resource struct {
	name string
	kind ws.ResourceKind
}

var _ ws.Resource = Resource{}

// NewResource 创建资源
func NewResource(kind ws.ResourceKind, name string) Resource {
	return Resource{name: name, kind: kind}
}

// System 系统资源
func System() Resource {
	return Resource{name: ws.SystemResource, kind: ws.KindSystem}
}

// Name 资源名
func (r Resource) Name() string { return r.name }

// Kind 资源类型
func (r Resource) Kind() ws.ResourceKind { return r.kind }

// String 形如 Database/db1
func (r Resource) String() string {
	return r.kind.String() + "/" + r.name
}

// ParsePath 从请求路径解析资源类型与名称
//
// 没有资源前缀时返回系统资源；有前缀但缺少名称时返回 ErrInvalidPath。
func ParsePath(path string) (ws.ResourceKind, string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 {
		return ws.KindSystem, ws.SystemResource, nil
	}

	kind, ok := prefixKinds[strings.ToLower(segments[0])]
	if !ok {
		return ws.KindSystem, ws.SystemResource, nil
	}

	if len(segments) < 2 || segments[1] == "" {
		return 0, "", ErrInvalidPath.WithMessage("missing " + strings.ToLower(kind.String()) + " name in path")
	}

	name, err := url.PathUnescape(segments[1])
	if err != nil {
		return 0, "", ErrInvalidPath.WithError(err)
	}
	return kind, name, nil
}
