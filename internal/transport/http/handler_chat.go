package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"aihelper-server-go/internal/domain/chat"
	"aihelper-server-go/internal/domain/conversation"
	"aihelper-server-go/internal/platform/logging"
)

// ChatHandler exposes the generation endpoints.
type ChatHandler struct {
	svc    *chat.Service
	logger *logging.Logger
}

func NewChatHandler(svc *chat.Service, logger *logging.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// Register 注册聊天相关的HTTP路由，全部需要认证
func (h *ChatHandler) Register(secured *gin.RouterGroup) {
	secured.POST("/chat", h.handleChat)
	secured.POST("/chat/stop", h.handleStop)
}

func (h *ChatHandler) handleChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}

	resp, err := h.svc.Send(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			RespondError(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		h.logger.ErrorTag("聊天", "聊天请求处理失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "生成回复失败", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, resp, "")
}

type stopRequest struct {
	ConversationID uint `json:"conversation_id" binding:"required"`
}

func (h *ChatHandler) handleStop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}

	err := h.svc.StopGeneration(currentUserID(c), req.ConversationID)
	switch {
	case err == nil:
		RespondSuccess(c, http.StatusOK, nil, "停止请求已接受")
	case errors.Is(err, chat.ErrNoActiveGeneration):
		RespondError(c, http.StatusNotFound, "未找到指定的生成请求或已完成", nil)
	case errors.Is(err, conversation.ErrNotFound):
		RespondError(c, http.StatusNotFound, err.Error(), nil)
	default:
		h.logger.ErrorTag("聊天", "停止请求处理失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "服务器内部错误", nil)
	}
}
