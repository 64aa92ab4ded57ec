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

// MessageHandler exposes single-message read and delete.
type MessageHandler struct {
	convs  *conversation.Service
	images *image.Service
	logger *logging.Logger
}

func NewMessageHandler(convs *conversation.Service, images *image.Service, logger *logging.Logger) *MessageHandler {
	return &MessageHandler{convs: convs, images: images, logger: logger}
}

// Register 注册消息相关的HTTP路由，全部需要认证
func (h *MessageHandler) Register(secured *gin.RouterGroup) {
	group := secured.Group("/messages")
	group.GET("/:id", h.handleGet)
	group.DELETE("/:id", h.handleDelete)
}

func (h *MessageHandler) handleGet(c *gin.Context) {
	id, ok := h.messageID(c)
	if !ok {
		return
	}
	msg, err := h.convs.Message(currentUserID(c), id)
	if err != nil {
		h.respondError(c, err, "查询消息失败")
		return
	}
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
	RespondSuccess(c, http.StatusOK, dto, "")
}

func (h *MessageHandler) handleDelete(c *gin.Context) {
	id, ok := h.messageID(c)
	if !ok {
		return
	}
	userID := currentUserID(c)
	msg, err := h.convs.Message(userID, id)
	if err != nil {
		h.respondError(c, err, "删除消息失败")
		return
	}
	if msg.HasImages {
		if err := h.images.DeleteByMessageID(msg.ID); err != nil {
			h.respondError(c, err, "删除消息失败")
			return
		}
	}
	if err := h.convs.DeleteMessage(userID, id); err != nil {
		h.respondError(c, err, "删除消息失败")
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "消息已删除")
}

func (h *MessageHandler) messageID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "消息ID无效", nil)
		return 0, false
	}
	return uint(id), true
}

func (h *MessageHandler) respondError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, conversation.ErrMessageNotFound) {
		RespondError(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	h.logger.ErrorTag("聊天", "%s: %v", fallback, err)
	RespondError(c, http.StatusInternalServerError, fallback, nil)
}
