package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"aihelper-server-go/internal/platform/logging"
)

// TokenCodec signs and verifies the stateless bearer tokens carried by every
// authenticated request. Tokens are HS256-signed against a single server-held
// secret; there is no revocation list, so a token stays valid until its
// embedded expiry unless the secret changes.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	logger *logging.Logger
}

// NewTokenCodec builds a codec using the provided secret and token lifetime.
// The default lifetime lives in the config layer; a zero or negative ttl here
// is taken literally and issues tokens that are already expired.
func NewTokenCodec(secret string, ttl time.Duration, logger *logging.Logger) (*TokenCodec, error) {
	if secret == "" {
		// 空密钥会让所有认证失效，属于启动期致命错误
		return nil, errors.New("token codec requires a signing secret")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TokenCodec{
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Issue creates a signed token for the subject, embedding issue and expiry
// timestamps plus any additional claims (user_id, role).
func (c *TokenCodec) Issue(subject string, claims map[string]any) (string, error) {
	now := time.Now()
	mapClaims := jwt.MapClaims{
		"sub": subject,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(c.ttl)),
	}
	for k, v := range claims {
		if k == "sub" || k == "iat" || k == "exp" {
			continue
		}
		mapClaims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	c.logger.InfoTag("认证", "签发令牌 - 用户: %s, 过期时间: %s", subject, now.Add(c.ttl).Format(time.RFC3339))
	return signed, nil
}

// ExtractSubject parses and verifies the token, returning its subject, or the
// empty string on any failure. Failure classes are only distinguished in logs.
func (c *TokenCodec) ExtractSubject(tokenString string) string {
	claims, err := c.parse(tokenString)
	if err != nil {
		c.logger.WarnTag("认证", "提取用户名失败(%s) - 令牌: %s", classifyTokenError(err), tokenPrefix(tokenString))
		return ""
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return subject
}

// ExtractExpiry returns the token expiry, or the zero time on any failure.
func (c *TokenCodec) ExtractExpiry(tokenString string) time.Time {
	claims, err := c.parse(tokenString)
	if err != nil {
		c.logger.WarnTag("认证", "提取过期时间失败(%s) - 令牌: %s", classifyTokenError(err), tokenPrefix(tokenString))
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Valid reports whether the token carries the expected subject, is unexpired
// and correctly signed. Every parse failure mode is collapsed into false.
func (c *TokenCodec) Valid(tokenString, expectedSubject string) bool {
	if tokenString == "" || expectedSubject == "" {
		return false
	}
	claims, err := c.parse(tokenString)
	if err != nil {
		return false
	}
	subject, err := claims.GetSubject()
	if err != nil || subject != expectedSubject {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.After(time.Now())
}

func (c *TokenCodec) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(
		tokenString,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// classifyTokenError collapses jwt/v5 failures into the handful of classes we
// care to log. Callers never see these distinctions.
func classifyTokenError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad-signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unsupported"
	default:
		return "invalid"
	}
}

// tokenPrefix redacts a token down to a short prefix safe for logs.
func tokenPrefix(tokenString string) string {
	const keep = 8
	if len(tokenString) <= keep {
		return tokenString
	}
	return tokenString[:keep] + "..."
}
