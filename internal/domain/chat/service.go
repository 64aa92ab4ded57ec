// Package chat implements the generation flow: conversation resolution,
// message persistence, image handling, model invocation and cooperative
// stop handling.
package chat

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"aihelper-server-go/internal/domain/conversation"
	"aihelper-server-go/internal/domain/eventbus"
	"aihelper-server-go/internal/domain/image"
	"aihelper-server-go/internal/domain/llm"
	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/errors"
	"aihelper-server-go/internal/platform/logging"
)

const (
	systemPrompt       = "你是一个乐于助人的AI助手，回答准确、简洁、友好。"
	interruptedMessage = "生成已被用户中断"
)

// ErrNoActiveGeneration reports a stop request for a conversation with
// no generation in flight.
var ErrNoActiveGeneration = errors.New(errors.KindChat, "chat.StopGeneration", "未找到指定的生成请求或已完成")

// Request is one inbound chat turn. ConversationID zero starts a new
// conversation.
type Request struct {
	ConversationID uint           `json:"conversation_id"`
	Content        string         `json:"content" binding:"required"`
	Model          string         `json:"model"`
	Images         []image.Upload `json:"images"`
}

// Response carries the assistant's reply together with the conversation
// it landed in.
type Response struct {
	ConversationID uint            `json:"conversation_id"`
	Message        *models.Message `json:"message"`
	Stopped        bool            `json:"stopped"`
}

type Service struct {
	tracker *Tracker
	convs   *conversation.Service
	images  *image.Service
	client  llm.Client
	bus     *eventbus.Bus
	logger  *logging.Logger
}

func NewService(tracker *Tracker, convs *conversation.Service, images *image.Service, client llm.Client, bus *eventbus.Bus, logger *logging.Logger) *Service {
	return &Service{
		tracker: tracker,
		convs:   convs,
		images:  images,
		client:  client,
		bus:     bus,
		logger:  logger,
	}
}

// Send runs one chat turn. The conversation's tracker entry lives for
// the duration of the call so a concurrent stop request can interrupt
// the generation before or after the model call.
func (s *Service) Send(ctx context.Context, userID uint, req Request) (*Response, error) {
	conv, err := s.resolveConversation(userID, req)
	if err != nil {
		return nil, err
	}

	s.tracker.Register(conv.ID)
	defer s.tracker.Complete(conv.ID)

	userMsg, err := s.convs.AppendMessage(conv.ID, "user", req.Content, "", len(req.Images) > 0)
	if err != nil {
		return nil, err
	}

	ocrText, err := s.storeImages(ctx, userID, conv.ID, userMsg.ID, req.Images)
	if err != nil {
		return nil, err
	}

	history, err := s.convs.Messages(userID, conv.ID)
	if err != nil {
		return nil, err
	}
	messages := buildPrompt(history, ocrText)

	if s.client == nil {
		return nil, errors.New(errors.KindConfig, "chat.Send", "大模型服务未配置")
	}

	// 调用模型前先检查停止标志，避免无谓的模型调用
	if s.tracker.ShouldStop(conv.ID) {
		return s.interrupted(conv.ID)
	}

	completion, err := s.client.Complete(ctx, req.Model, messages)
	if err != nil {
		return nil, err
	}

	// 模型调用期间可能收到停止请求，此时丢弃生成结果
	if s.tracker.ShouldStop(conv.ID) {
		s.logger.InfoTag("聊天", "生成结果被丢弃 conversation=%d", conv.ID)
		return s.interrupted(conv.ID)
	}

	assistantMsg, err := s.convs.AppendMessage(conv.ID, "assistant", completion.Content, completion.Reasoning, false)
	if err != nil {
		return nil, err
	}

	s.publishCompleted(conv.ID)
	return &Response{ConversationID: conv.ID, Message: assistantMsg}, nil
}

// StopGeneration flags the conversation's running generation. The
// generation keeps running until it next checks the flag; this call only
// promises the result will be discarded.
func (s *Service) StopGeneration(userID, conversationID uint) error {
	if _, err := s.convs.Get(userID, conversationID); err != nil {
		return err
	}
	if !s.tracker.RequestStop(conversationID) {
		return ErrNoActiveGeneration
	}
	s.logger.InfoTag("聊天", "收到停止请求 conversation=%d user=%d", conversationID, userID)
	return nil
}

func (s *Service) resolveConversation(userID uint, req Request) (*models.Conversation, error) {
	if req.ConversationID != 0 {
		return s.convs.Get(userID, req.ConversationID)
	}
	return s.convs.Create(userID, "", req.Model)
}

func (s *Service) storeImages(ctx context.Context, userID, conversationID, messageID uint, uploads []image.Upload) (string, error) {
	if len(uploads) == 0 {
		return "", nil
	}
	var texts []string
	for _, upload := range uploads {
		img, err := s.images.CreateFromBase64(ctx, userID, conversationID, messageID, upload)
		if err != nil {
			return "", err
		}
		if img.OCRText != "" {
			texts = append(texts, img.OCRText)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// interrupted records the interruption in the history so the client sees
// a consistent transcript.
func (s *Service) interrupted(conversationID uint) (*Response, error) {
	msg, err := s.convs.AppendMessage(conversationID, "assistant", interruptedMessage, "", false)
	if err != nil {
		return nil, err
	}
	s.publishCompleted(conversationID)
	return &Response{ConversationID: conversationID, Message: msg, Stopped: true}, nil
}

func (s *Service) publishCompleted(conversationID uint) {
	count, err := s.convs.MessageCount(conversationID)
	if err != nil {
		s.logger.WarnTag("聊天", "统计消息失败 conversation=%d: %v", conversationID, err)
		return
	}
	s.bus.PublishAsync(eventbus.EventChatCompleted, eventbus.ChatCompletedData{
		ConversationID: conversationID,
		MessageCount:   int(count),
	})
}

// buildPrompt converts stored history into model messages. OCR text from
// the current turn's images is appended to the final user message so the
// model can reason over image contents.
func buildPrompt(history []models.Message, ocrText string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for i, msg := range history {
		content := msg.Content
		if i == len(history)-1 && ocrText != "" {
			content += "\n\n[图片文字内容]\n" + ocrText
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: content,
		})
	}
	return messages
}
