package auth

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AllResources 授予全部资源
const AllResources = "*"

// Claims 单次令牌声明
type Claims struct {
	jwt.RegisteredClaims
	Resources []string `json:"res,omitempty"` // 允许访问的资源名
	Admin     bool     `json:"adm,omitempty"` // 管理员令牌
}

// Grants 是否允许访问指定资源，管理员令牌允许全部
func (c *Claims) Grants(resource string) bool {
	if c.Admin {
		return true
	}
	return slices.ContainsFunc(c.Resources, func(r string) bool {
		return r == AllResources || strings.EqualFold(r, resource)
	})
}

// Expiry 过期时间，未设置时为零值
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenConfig 令牌配置
type TokenConfig struct {
	Secret string        `mapstructure:"secret" yaml:"secret"` // HS256 密钥
	TTL    time.Duration `mapstructure:"ttl" yaml:"ttl"`       // 签发有效期
	Leeway time.Duration `mapstructure:"leeway" yaml:"leeway"` // 校验时允许的时钟偏差
	Issuer string        `mapstructure:"issuer" yaml:"issuer"` // iss 声明
}

// DefaultTokenConfig 默认令牌配置
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		TTL:    time.Minute,
		Leeway: 5 * time.Second,
		Issuer: "eventpush",
	}
}

// Issuer 签发单次令牌
type Issuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewIssuer 创建签发器
func NewIssuer(cfg TokenConfig) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth: HS256 requires secret key")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenConfig().TTL
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// Issue 签发令牌，返回令牌字符串与声明
func (i *Issuer) Issue(subject string, resources []string, admin bool) (string, *Claims, error) {
	now := i.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
		Resources: resources,
		Admin:     admin,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, claims, nil
}

// Verifier 校验令牌签名、算法与过期时间
type Verifier struct {
	cfg TokenConfig
	now func() time.Time
}

// NewVerifier 创建校验器
func NewVerifier(cfg TokenConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth: HS256 requires secret key")
	}
	return &Verifier{cfg: cfg, now: time.Now}, nil
}

// Verify 解析并校验令牌，失败时返回 ErrInvalidToken
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(v.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken.WithError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		return nil, ErrInvalidToken.WithMessage("auth token has no jti claim")
	}
	return claims, nil
}

// Deadline 令牌在校验器眼中失效的时刻，即过期时间加时钟偏差
func (v *Verifier) Deadline(c *Claims) time.Time {
	exp := c.Expiry()
	if exp.IsZero() {
		return exp
	}
	return exp.Add(v.cfg.Leeway)
}
