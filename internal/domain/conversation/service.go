// Package conversation manages conversations and their message history.
package conversation

import (
	stderrors "errors"

	"gorm.io/gorm"

	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/errors"
	"aihelper-server-go/internal/platform/logging"
)

// ErrNotFound reports a conversation that does not exist or does not
// belong to the requesting user.
var ErrNotFound = stderrors.New("会话不存在")

// ErrMessageNotFound reports a message that does not exist or whose
// conversation belongs to another user.
var ErrMessageNotFound = stderrors.New("消息不存在")

const defaultTitle = "新对话"

type Service struct {
	db     *gorm.DB
	logger *logging.Logger
}

func NewService(db *gorm.DB, logger *logging.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Create opens a new conversation for the user. An empty title gets the
// placeholder title until the first exchange generates a real one.
func (s *Service) Create(userID uint, title, model string) (*models.Conversation, error) {
	if title == "" {
		title = defaultTitle
	}
	conv := &models.Conversation{UserID: userID, Title: title, Model: model}
	if err := s.db.Create(conv).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "conversation.Create", "创建会话失败", err)
	}
	return conv, nil
}

// ListByUser returns the user's conversations, most recently updated first.
func (s *Service) ListByUser(userID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&convs).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "conversation.ListByUser", "查询会话列表失败", err)
	}
	return convs, nil
}

// Get returns the conversation if it belongs to the user.
func (s *Service) Get(userID, conversationID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Where("id = ? AND user_id = ?", conversationID, userID).First(&conv).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "conversation.Get", "查询会话失败", err)
	}
	return &conv, nil
}

// UpdateTitle renames the conversation.
func (s *Service) UpdateTitle(userID, conversationID uint, title string) error {
	if _, err := s.Get(userID, conversationID); err != nil {
		return err
	}
	err := s.db.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("title", title).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "conversation.UpdateTitle", "更新会话标题失败", err)
	}
	return nil
}

// Delete removes the conversation together with its messages and image
// records in one transaction.
func (s *Service) Delete(userID, conversationID uint) error {
	if _, err := s.Get(userID, conversationID); err != nil {
		return err
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.MessageImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Conversation{}, conversationID).Error
	})
	if err != nil {
		return errors.Wrap(errors.KindStorage, "conversation.Delete", "删除会话失败", err)
	}
	return nil
}

// Messages returns the conversation's messages in send order, images
// preloaded.
func (s *Service) Messages(userID, conversationID uint) ([]models.Message, error) {
	if _, err := s.Get(userID, conversationID); err != nil {
		return nil, err
	}
	var msgs []models.Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("msg_order ASC").
		Preload("Images").
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "conversation.Messages", "查询消息失败", err)
	}
	return msgs, nil
}

// AppendMessage stores a message at the end of the conversation and bumps
// the conversation's updated_at so the list ordering follows activity.
func (s *Service) AppendMessage(conversationID uint, role, content, reasoning string, hasImages bool) (*models.Message, error) {
	var msg *models.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var next int64
		if err := tx.Model(&models.Message{}).
			Where("conversation_id = ?", conversationID).
			Count(&next).Error; err != nil {
			return err
		}
		msg = &models.Message{
			ConversationID:   conversationID,
			Role:             role,
			Content:          content,
			ReasoningContent: reasoning,
			Order:            int(next) + 1,
			HasImages:        hasImages,
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", tx.NowFunc()).Error
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "conversation.AppendMessage", "保存消息失败", err)
	}
	return msg, nil
}

// Message returns a single message after checking that its conversation
// belongs to the user. Ownership failures are indistinguishable from a
// missing message.
func (s *Service) Message(userID, messageID uint) (*models.Message, error) {
	var msg models.Message
	err := s.db.Preload("Images").First(&msg, messageID).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "conversation.Message", "查询消息失败", err)
	}
	if _, err := s.Get(userID, msg.ConversationID); err != nil {
		return nil, ErrMessageNotFound
	}
	return &msg, nil
}

// DeleteMessage removes one message row after the ownership check. Image
// records and stored objects are cleaned up by the caller through the image
// service before the row goes away.
func (s *Service) DeleteMessage(userID, messageID uint) error {
	if _, err := s.Message(userID, messageID); err != nil {
		return err
	}
	if err := s.db.Delete(&models.Message{}, messageID).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "conversation.DeleteMessage", "删除消息失败", err)
	}
	return nil
}

// MessageCount returns the number of messages stored for the conversation.
func (s *Service) MessageCount(conversationID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(errors.KindStorage, "conversation.MessageCount", "统计消息失败", err)
	}
	return count, nil
}
