package errors

/*
	内置常用错误码
*/

var (
	// ErrServer 服务器错误
	ErrServer = New(1000, "server error", 500)
	// ErrBadRequest 客户端请求错误
	ErrBadRequest = New(1001, "bad request", 400)
	// ErrUnauthorized 未授权
	ErrUnauthorized = New(1002, "unauthorized", 401)
	// ErrForbidden 禁止访问
	ErrForbidden = New(1003, "forbidden", 403)
	// ErrNotFound 资源不存在
	ErrNotFound = New(1004, "not found", 404)
	// ErrServiceUnavailable 服务不可用（资源未加载、连接数超限）
	ErrServiceUnavailable = New(1005, "service unavailable", 503)
)
