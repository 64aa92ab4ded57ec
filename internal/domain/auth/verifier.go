package auth

import (
	"aihelper-server-go/internal/models"
)

// VerifyForUser decides whether a presented token authenticates the given
// user record: the token must name the user's username, be unexpired and
// correctly signed, and the account must not be deactivated.
func (c *TokenCodec) VerifyForUser(tokenString string, user *models.User) bool {
	if user == nil {
		return false
	}
	if !user.Enabled() {
		c.logger.WarnTag("认证", "账号已停用 - 用户: %s", user.Username)
		return false
	}
	return c.Valid(tokenString, user.Username)
}
