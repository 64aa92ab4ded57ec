package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aihelper-server-go/internal/domain/verification"
	"aihelper-server-go/internal/platform/logging"
)

var allowedCodeTypes = map[string]bool{
	"register":       true,
	"login":          true,
	"reset_password": true,
}

// VerificationHandler exposes verification code delivery. The routes are
// whitelisted: codes are requested before the user can log in.
type VerificationHandler struct {
	svc    *verification.Service
	logger *logging.Logger
}

func NewVerificationHandler(svc *verification.Service, logger *logging.Logger) *VerificationHandler {
	return &VerificationHandler{svc: svc, logger: logger}
}

// Register 注册验证码相关的HTTP路由
func (h *VerificationHandler) Register(api *gin.RouterGroup) {
	api.POST("/verification/code", h.handleSendCode)
}

type sendCodeRequest struct {
	Receiver string `json:"receiver" binding:"required"`
	Type     string `json:"type" binding:"required"`
}

func (h *VerificationHandler) handleSendCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}
	if !allowedCodeTypes[req.Type] {
		RespondError(c, http.StatusBadRequest, "不支持的验证码类型", nil)
		return
	}

	if err := h.svc.Issue(c.Request.Context(), req.Receiver, req.Type); err != nil {
		h.logger.ErrorTag("验证码", "发送验证码失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "发送验证码失败", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "验证码已发送")
}
