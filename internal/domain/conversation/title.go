package conversation

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"aihelper-server-go/internal/domain/llm"
	"aihelper-server-go/internal/models"
)

const titlePrompt = "请为以下对话生成一个简短的标题，不超过10个字，直接返回标题内容，不要包含引号或其他符号。"

// Titler generates conversation titles from the first exchange. It is
// wired to the chat-completed event so title generation never blocks a
// chat response.
type Titler struct {
	svc    *Service
	client llm.Client
}

func NewTitler(svc *Service, client llm.Client) *Titler {
	return &Titler{svc: svc, client: client}
}

// GenerateIfNeeded replaces the placeholder title once the first
// user/assistant exchange exists. Later events are no-ops.
func (t *Titler) GenerateIfNeeded(conversationID uint, messageCount int) {
	if messageCount != 2 {
		return
	}
	conv, err := t.svc.conversationByID(conversationID)
	if err != nil || conv.Title != defaultTitle {
		return
	}

	msgs, err := t.svc.Messages(conv.UserID, conversationID)
	if err != nil || len(msgs) == 0 {
		return
	}

	title := t.generate(msgs[0].Content)
	if title == "" {
		return
	}
	if err := t.svc.UpdateTitle(conv.UserID, conversationID, title); err != nil {
		t.svc.logger.WarnTag("聊天", "更新会话标题失败: %v", err)
	}
}

func (t *Titler) generate(firstUserMessage string) string {
	fallback := truncateTitle(firstUserMessage, 10)
	if t.client == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := t.client.Complete(ctx, "", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: titlePrompt},
		{Role: openai.ChatMessageRoleUser, Content: firstUserMessage},
	})
	if err != nil {
		t.svc.logger.WarnTag("聊天", "生成会话标题失败, 使用首条消息截断: %v", err)
		return fallback
	}

	title := strings.TrimSpace(strings.Trim(resp.Content, `"“”'`))
	if title == "" {
		return fallback
	}
	return truncateTitle(title, 20)
}

func truncateTitle(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// conversationByID fetches without the ownership check; only used by the
// title generator which is triggered from trusted internal events.
func (s *Service) conversationByID(id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.First(&conv, id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}
