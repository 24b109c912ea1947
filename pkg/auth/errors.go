package auth

import "github.com/tokmz/eventpush/pkg/errors"

// 预定义错误
var (
	ErrInvalidPath     = errors.New(4001, "invalid resource path", 400)
	ErrMissingToken    = errors.New(4002, "single use auth token is required", 401)
	ErrInvalidToken    = errors.New(4003, "invalid auth token", 403)
	ErrTokenReused     = errors.New(4004, "auth token was already used", 403)
	ErrNotGranted      = errors.New(4005, "auth token does not grant access to resource", 403)
	ErrAdminRequired   = errors.New(4006, "admin access is required", 403)
	ErrUnknownResource = errors.New(4007, "could not find resource", 503)
	ErrTokenStore      = errors.New(4008, "token store unavailable", 503)
)

// unknownResource 资源不存在错误，消息包含资源名
func unknownResource(name string) *errors.Error {
	return ErrUnknownResource.WithMessage("Could not find a resource named: " + name)
}
