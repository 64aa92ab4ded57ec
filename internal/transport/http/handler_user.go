package httptransport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"aihelper-server-go/internal/domain/auth"
	"aihelper-server-go/internal/domain/avatar"
	"aihelper-server-go/internal/domain/conversation"
	"aihelper-server-go/internal/domain/image"
	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/logging"
)

// UserHandler exposes the user profile surface.
type UserHandler struct {
	db      *gorm.DB
	auth    *auth.Service
	avatars *avatar.Service
	images  *image.Service
	convs   *conversation.Service
	logger  *logging.Logger
}

func NewUserHandler(db *gorm.DB, authSvc *auth.Service, avatars *avatar.Service, images *image.Service, convs *conversation.Service, logger *logging.Logger) *UserHandler {
	return &UserHandler{db: db, auth: authSvc, avatars: avatars, images: images, convs: convs, logger: logger}
}

// Register 注册用户相关的HTTP路由。auth-test和password在认证白名单内，
// 其余接口需要登录。
func (h *UserHandler) Register(api, secured *gin.RouterGroup) {
	api.GET("/users/auth-test", h.handleAuthTest)
	api.POST("/users/password", h.handleResetPassword)

	group := secured.Group("/users")
	group.GET("/me", h.handleMe)
	group.PUT("/me", h.handleUpdateProfile)
	group.POST("/me/password", h.handleChangePassword)
	group.POST("/me/deactivate", h.handleDeactivate)
	group.GET("/me/export", h.handleExport)
	group.POST("/me/avatar/generate", h.handleGenerateAvatar)
	group.GET("/me/avatar", h.handleAvatarURL)

	admin := secured.Group("/admin/users")
	admin.Use(RequireRole("admin"))
	admin.POST("/:id/activate", h.handleActivate)
	admin.POST("/:id/deactivate", h.handleAdminDeactivate)
}

// handleAuthTest 诊断接口：报告当前请求是否携带有效身份。白名单内，
// 无论是否登录都返回200。
func (h *UserHandler) handleAuthTest(c *gin.Context) {
	if id, ok := c.Get(CtxUserID); ok {
		RespondSuccess(c, http.StatusOK, gin.H{
			"authenticated": true,
			"user_id":       id,
			"username":      c.GetString(CtxUsername),
			"role":          c.GetString(CtxRole),
		}, "")
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"authenticated": false}, "")
}

// handleResetPassword 通过验证码重置密码（忘记密码流程，无需登录）
func (h *UserHandler) handleResetPassword(c *gin.Context) {
	var req auth.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}
	if err := h.auth.ResetPassword(c.Request.Context(), req); err != nil {
		switch {
		case errors.Is(err, auth.ErrCodeInvalid), errors.Is(err, auth.ErrUserNotFound):
			RespondError(c, http.StatusUnauthorized, err.Error(), nil)
		default:
			h.logger.ErrorTag("认证", "重置密码失败: %v", err)
			RespondError(c, http.StatusInternalServerError, "服务器内部错误", nil)
		}
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "密码重置成功")
}

func (h *UserHandler) handleMe(c *gin.Context) {
	user, err := h.auth.FindByID(c.Request.Context(), currentUserID(c))
	if err != nil || user == nil {
		RespondError(c, http.StatusNotFound, "用户不存在", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, h.withAvatarURL(user), "")
}

type updateProfileRequest struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
}

func (h *UserHandler) handleUpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}

	updates := map[string]interface{}{}
	if req.Nickname != "" {
		updates["nickname"] = req.Nickname
	}
	if req.Email != "" {
		updates["email"] = req.Email
	}
	if req.Mobile != "" {
		updates["mobile"] = req.Mobile
	}
	if len(updates) == 0 {
		RespondError(c, http.StatusBadRequest, "没有需要更新的字段", nil)
		return
	}

	err := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", currentUserID(c)).
		Updates(updates).Error
	if err != nil {
		h.logger.ErrorTag("认证", "更新用户资料失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "更新资料失败", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "资料已更新")
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *UserHandler) handleChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}
	err := h.auth.ChangePassword(c.Request.Context(), currentUserID(c), req.OldPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			RespondError(c, http.StatusUnauthorized, "原密码错误", nil)
			return
		}
		h.logger.ErrorTag("认证", "修改密码失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "修改密码失败", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "密码已修改")
}

func (h *UserHandler) handleDeactivate(c *gin.Context) {
	if err := h.auth.SetUserStatus(c.Request.Context(), currentUserID(c), 0); err != nil {
		h.logger.ErrorTag("认证", "停用账号失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "停用账号失败", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "账号已停用")
}

func (h *UserHandler) handleActivate(c *gin.Context) {
	h.setStatusByParam(c, 1, "账号已启用")
}

func (h *UserHandler) handleAdminDeactivate(c *gin.Context) {
	h.setStatusByParam(c, 0, "账号已停用")
}

func (h *UserHandler) setStatusByParam(c *gin.Context, status uint, message string) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "用户ID无效", nil)
		return
	}
	if err := h.auth.SetUserStatus(c.Request.Context(), uint(id), status); err != nil {
		h.logger.ErrorTag("认证", "更新用户状态失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "更新用户状态失败", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, message)
}

// handleExport 导出用户的全部数据：资料、会话和消息
func (h *UserHandler) handleExport(c *gin.Context) {
	userID := currentUserID(c)
	user, err := h.auth.FindByID(c.Request.Context(), userID)
	if err != nil || user == nil {
		RespondError(c, http.StatusNotFound, "用户不存在", nil)
		return
	}

	convs, err := h.convs.ListByUser(userID)
	if err != nil {
		h.logger.ErrorTag("认证", "导出数据失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "导出数据失败", nil)
		return
	}

	export := gin.H{"user": user, "conversations": []gin.H{}}
	items := make([]gin.H, 0, len(convs))
	for _, conv := range convs {
		msgs, err := h.convs.Messages(userID, conv.ID)
		if err != nil {
			h.logger.WarnTag("认证", "导出会话消息失败 conversation=%d: %v", conv.ID, err)
			continue
		}
		items = append(items, gin.H{"conversation": conv, "messages": msgs})
	}
	export["conversations"] = items
	RespondSuccess(c, http.StatusOK, export, "")
}

type generateAvatarRequest struct {
	Prompt string `json:"prompt"`
}

func (h *UserHandler) handleGenerateAvatar(c *gin.Context) {
	var req generateAvatarRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}

	key, err := h.avatars.GenerateForUser(c.Request.Context(), currentUserID(c), req.Prompt, false)
	if err != nil {
		h.logger.ErrorTag("头像", "生成头像失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "生成头像失败", nil)
		return
	}

	url, err := h.images.SignURL(key)
	if err != nil {
		h.logger.WarnTag("头像", "生成头像URL失败: %v", err)
	}
	RespondSuccess(c, http.StatusOK, gin.H{"avatar": key, "url": url}, "头像已生成")
}

// handleAvatarURL 返回当前头像的临时访问URL
func (h *UserHandler) handleAvatarURL(c *gin.Context) {
	user, err := h.auth.FindByID(c.Request.Context(), currentUserID(c))
	if err != nil || user == nil {
		RespondError(c, http.StatusNotFound, "用户不存在", nil)
		return
	}
	if user.Avatar == "" {
		RespondSuccess(c, http.StatusOK, gin.H{"url": ""}, "")
		return
	}
	url, err := h.images.SignURL(user.Avatar)
	if err != nil {
		h.logger.WarnTag("头像", "生成头像URL失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "生成头像URL失败", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"url": url}, "")
}

// withAvatarURL decorates the user with a signed avatar URL without
// touching the stored record.
func (h *UserHandler) withAvatarURL(user *models.User) gin.H {
	avatarURL := ""
	if user.Avatar != "" {
		if url, err := h.images.SignURL(user.Avatar); err == nil {
			avatarURL = url
		}
	}
	return gin.H{"user": user, "avatar_url": avatarURL}
}
