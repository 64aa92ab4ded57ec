package httptransport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"aihelper-server-go/internal/domain/auth"
	"aihelper-server-go/internal/platform/logging"
)

// AuthHandler exposes registration, login and password recovery.
type AuthHandler struct {
	svc    *auth.Service
	logger *logging.Logger
}

func NewAuthHandler(svc *auth.Service, logger *logging.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register 注册认证相关的HTTP路由
func (h *AuthHandler) Register(api *gin.RouterGroup) {
	group := api.Group("/auth")
	group.POST("/register", h.handleRegister)
	group.POST("/login", h.handleLogin)
	group.POST("/login/code", h.handleLoginWithCode)
	group.POST("/password/reset", h.handleResetPassword)
	group.GET("/check", h.handleCheckToken)
}

func (h *AuthHandler) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}
	resp, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, resp, "注册成功")
}

func (h *AuthHandler) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}
	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, resp, "登录成功")
}

func (h *AuthHandler) handleLoginWithCode(c *gin.Context) {
	var req auth.CodeLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}
	resp, err := h.svc.LoginWithCode(c.Request.Context(), req)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, resp, "登录成功")
}

func (h *AuthHandler) handleResetPassword(c *gin.Context) {
	var req auth.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req); err != nil {
		h.respondAuthError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "密码重置成功")
}

// handleCheckToken 检查令牌有效性，供前端判断登录状态
func (h *AuthHandler) handleCheckToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tokenString == "" || tokenString == header {
		RespondError(c, http.StatusUnauthorized, "缺少令牌", nil)
		return
	}
	user, err := h.svc.CheckToken(c.Request.Context(), tokenString)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "令牌无效或已过期", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, user, "")
}

func (h *AuthHandler) respondAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		RespondError(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, auth.ErrCodeInvalid),
		errors.Is(err, auth.ErrBadCredentials),
		errors.Is(err, auth.ErrUserNotFound):
		RespondError(c, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, auth.ErrUserDisabled):
		RespondError(c, http.StatusForbidden, err.Error(), nil)
	default:
		h.logger.ErrorTag("认证", "认证请求处理失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "服务器内部错误", nil)
	}
}
