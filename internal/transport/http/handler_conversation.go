package httptransport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"aihelper-server-go/internal/domain/conversation"
	"aihelper-server-go/internal/domain/image"
	"aihelper-server-go/internal/platform/logging"
)

// ConversationHandler exposes conversation and history management.
type ConversationHandler struct {
	svc    *conversation.Service
	images *image.Service
	logger *logging.Logger
}

func NewConversationHandler(svc *conversation.Service, images *image.Service, logger *logging.Logger) *ConversationHandler {
	return &ConversationHandler{svc: svc, images: images, logger: logger}
}

// Register 注册会话相关的HTTP路由，全部需要认证
func (h *ConversationHandler) Register(secured *gin.RouterGroup) {
	group := secured.Group("/conversations")
	group.GET("", h.handleList)
	group.POST("", h.handleCreate)
	group.GET("/:id", h.handleGet)
	group.DELETE("/:id", h.handleDelete)
	group.PUT("/:id/title", h.handleUpdateTitle)
	group.GET("/:id/messages", h.handleMessages)
}

func (h *ConversationHandler) handleList(c *gin.Context) {
	convs, err := h.svc.ListByUser(currentUserID(c))
	if err != nil {
		h.logger.ErrorTag("聊天", "查询会话列表失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "查询会话列表失败", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, convs, "")
}

type createConversationRequest struct {
	Title string `json:"title"`
	Model string `json:"model"`
}

func (h *ConversationHandler) handleCreate(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}
	conv, err := h.svc.Create(currentUserID(c), req.Title, req.Model)
	if err != nil {
		h.logger.ErrorTag("聊天", "创建会话失败: %v", err)
		RespondError(c, http.StatusInternalServerError, "创建会话失败", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, conv, "会话已创建")
}

func (h *ConversationHandler) handleGet(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	conv, err := h.svc.Get(currentUserID(c), id)
	if err != nil {
		h.respondError(c, err, "查询会话失败")
		return
	}
	RespondSuccess(c, http.StatusOK, conv, "")
}

func (h *ConversationHandler) handleDelete(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(currentUserID(c), id); err != nil {
		h.respondError(c, err, "删除会话失败")
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "会话已删除")
}

type updateTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

func (h *ConversationHandler) handleUpdateTitle(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	var req updateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请求参数错误", nil)
		return
	}
	if err := h.svc.UpdateTitle(currentUserID(c), id, req.Title); err != nil {
		h.respondError(c, err, "更新会话标题失败")
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "标题已更新")
}

// messageDTO 附带签名图片URL的消息
type messageDTO struct {
	ID               uint                `json:"id"`
	Role             string              `json:"role"`
	Content          string              `json:"content"`
	ReasoningContent string              `json:"reasoning_content,omitempty"`
	Order            int                 `json:"order"`
	Images           []image.ResponseDTO `json:"images,omitempty"`
}

func (h *ConversationHandler) handleMessages(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	msgs, err := h.svc.Messages(currentUserID(c), id)
	if err != nil {
		h.respondError(c, err, "查询消息失败")
		return
	}

	dtos := make([]messageDTO, 0, len(msgs))
	for _, msg := range msgs {
		dto := messageDTO{
			ID:               msg.ID,
			Role:             msg.Role,
			Content:          msg.Content,
			ReasoningContent: msg.ReasoningContent,
			Order:            msg.Order,
		}
		if msg.HasImages {
			imgs, err := h.images.ImagesByMessageID(msg.ID)
			if err != nil {
				h.logger.WarnTag("图片", "查询消息图片失败 message=%d: %v", msg.ID, err)
			} else {
				dto.Images = imgs
			}
		}
		dtos = append(dtos, dto)
	}
	RespondSuccess(c, http.StatusOK, dtos, "")
}

func (h *ConversationHandler) conversationID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "会话ID无效", nil)
		return 0, false
	}
	return uint(id), true
}

func (h *ConversationHandler) respondError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, conversation.ErrNotFound) {
		RespondError(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	h.logger.ErrorTag("聊天", "%s: %v", fallback, err)
	RespondError(c, http.StatusInternalServerError, fallback, nil)
}
