package httptransport

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"aihelper-server-go/internal/domain/auth"
	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/logging"
)

// Context keys set by the authenticator for downstream handlers.
const (
	CtxUserID   = "user_id"
	CtxUsername = "username"
	CtxRole     = "role"
	CtxClientIP = "client_ip"
)

// whitelistPrefixes are paths served without authentication: the auth
// endpoints themselves, public status, verification code requests and
// the password recovery flow.
var whitelistPrefixes = []string{
	"/api/auth/",
	"/api/public/",
	"/api/verification/",
	"/api/users/auth-test",
	"/api/users/password",
	"/docs",
	"/openapi.json",
	"/static/",
	"/favicon.ico",
}

// UserLoader resolves a token subject to the current user record.
type UserLoader interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// Authenticator attaches the caller's identity to the request context.
// It never rejects a request itself: requests with a missing or invalid
// token continue unauthenticated and RequireAuth turns the absent
// identity into a 401 where one is needed.
func Authenticator(codec *auth.TokenCodec, users UserLoader, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if isWhitelisted(path) {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.Next()
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if tokenString == "" {
			c.Next()
			return
		}

		subject := codec.ExtractSubject(tokenString)
		if subject == "" {
			c.Next()
			return
		}

		user, err := users.FindByUsername(c.Request.Context(), subject)
		if err != nil {
			logger.WarnTag("认证", "查询用户失败 - 用户: %s, 错误: %v", subject, err)
			c.Next()
			return
		}
		if user == nil || !codec.VerifyForUser(tokenString, user) {
			c.Next()
			return
		}

		c.Set(CtxUserID, user.ID)
		c.Set(CtxUsername, user.Username)
		c.Set(CtxRole, user.Role)
		c.Set(CtxClientIP, c.ClientIP())
		c.Next()
	}
}

func isWhitelisted(path string) bool {
	for _, prefix := range whitelistPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RequireAuth rejects requests that carry no authenticated identity.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(CtxUserID); !ok {
			RespondError(c, http.StatusUnauthorized, "未登录或登录已过期", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole rejects authenticated requests whose role does not match.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if got := c.GetString(CtxRole); got != role {
			RespondError(c, http.StatusForbidden, "没有操作权限", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// currentUserID reads the authenticated user's ID; RequireAuth upstream
// guarantees presence.
func currentUserID(c *gin.Context) uint {
	if v, ok := c.Get(CtxUserID); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}
