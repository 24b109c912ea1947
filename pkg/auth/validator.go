package auth

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokmz/eventpush/pkg/logger"
	"github.com/tokmz/eventpush/pkg/ws"
)

// Validator 握手验证器，实现 ws.Validator
//
// 顺序：解析路径 -> 解析资源 -> 校验令牌 -> 消费令牌。
// 资源不存在时不会消费令牌。
type Validator struct {
	resolver       Resolver
	verifier       *Verifier
	store          TokenStore
	log            logger.Logger
	requireAdmin   bool
	allowAnonymous bool
}

var _ ws.Validator = (*Validator)(nil)

// ValidatorOption 验证器选项
type ValidatorOption func(*Validator)

// WithAnonymous 允许不带令牌的非管理连接
func WithAnonymous(allow bool) ValidatorOption {
	return func(v *Validator) {
		v.allowAnonymous = allow
	}
}

// WithValidatorLogger 设置日志
func WithValidatorLogger(l logger.Logger) ValidatorOption {
	return func(v *Validator) {
		v.log = l
	}
}

// NewValidator 创建验证器
//
// verifier 为 nil 时只能匿名访问。
func NewValidator(resolver Resolver, verifier *Verifier, store TokenStore, opts ...ValidatorOption) *Validator {
	v := &Validator{
		resolver: resolver,
		verifier: verifier,
		store:    store,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Admin 返回要求管理员令牌的副本（流量观察与管理日志使用）
func (v *Validator) Admin() *Validator {
	c := *v
	c.requireAdmin = true
	c.allowAnonymous = false
	return &c
}

// RequiresAdmin 是否要求管理员令牌
func (v *Validator) RequiresAdmin() bool {
	return v.requireAdmin
}

// Validate 实现 ws.Validator
func (v *Validator) Validate(ctx context.Context, uri *url.URL, token string) (ws.Identity, error) {
	kind, name, err := ParsePath(uri.Path)
	if err != nil {
		return ws.Identity{}, err
	}

	resource, err := v.resolver.Resolve(ctx, kind, name)
	if err != nil {
		return ws.Identity{}, err
	}

	if err := v.authenticate(ctx, resource.Name(), token); err != nil {
		v.log.DebugContext(ctx, "websocket token rejected",
			zap.String("resource", resource.Name()),
			zap.Error(err),
		)
		return ws.Identity{}, err
	}

	id := uri.Query().Get(ws.QueryID)
	if id == "" {
		id = uuid.NewString()
	}
	return ws.Identity{
		ID:           id,
		Resource:     resource,
		ResourceName: resource.Name(),
	}, nil
}

func (v *Validator) authenticate(ctx context.Context, resource, token string) error {
	if token == "" {
		if v.allowAnonymous && !v.requireAdmin {
			return nil
		}
		return ErrMissingToken
	}
	if v.verifier == nil {
		return ErrInvalidToken.WithMessage("token authentication is not configured")
	}

	claims, err := v.verifier.Verify(token)
	if err != nil {
		return err
	}
	if v.requireAdmin && !claims.Admin {
		return ErrAdminRequired
	}
	if !claims.Grants(resource) {
		return ErrNotGranted.WithMessage("auth token does not grant access to " + resource)
	}

	if v.store == nil {
		return nil
	}
	fresh, err := v.store.Consume(ctx, claims.ID, v.verifier.Deadline(claims))
	if err != nil {
		return err
	}
	if !fresh {
		return ErrTokenReused
	}
	return nil
}
