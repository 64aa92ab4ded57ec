package conversation

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"aihelper-server-go/internal/domain/llm"
	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/logging"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&models.Conversation{}, &models.Message{}, &models.MessageImage{}); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	return NewService(db, logging.NewNop())
}

func TestServiceCreateAndList(t *testing.T) {
	svc := newTestService(t)

	conv, err := svc.Create(1, "", "qwen-plus")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if conv.Title != defaultTitle {
		t.Fatalf("expected placeholder title, got %q", conv.Title)
	}

	if _, err := svc.Create(2, "别人的会话", ""); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	convs, err := svc.ListByUser(1)
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != conv.ID {
		t.Fatalf("expected only user 1's conversation, got %+v", convs)
	}
}

func TestServiceOwnership(t *testing.T) {
	svc := newTestService(t)

	conv, err := svc.Create(1, "t", "")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if _, err := svc.Get(2, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user, got %v", err)
	}
	if err := svc.Delete(2, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user's delete, got %v", err)
	}
	if err := svc.UpdateTitle(2, conv.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user's rename, got %v", err)
	}
}

func TestServiceAppendMessageOrdering(t *testing.T) {
	svc := newTestService(t)

	conv, err := svc.Create(1, "t", "")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	for i, content := range []string{"你好", "你好！有什么可以帮你？", "再见"} {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if _, err := svc.AppendMessage(conv.ID, role, content, "", false); err != nil {
			t.Fatalf("AppendMessage error: %v", err)
		}
	}

	msgs, err := svc.Messages(1, conv.ID)
	if err != nil {
		t.Fatalf("Messages error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, msg := range msgs {
		if msg.Order != i+1 {
			t.Fatalf("message %d has order %d", i, msg.Order)
		}
	}
	if msgs[0].Content != "你好" || msgs[2].Content != "再见" {
		t.Fatalf("messages out of order: %+v", msgs)
	}
}

func TestServiceDeleteCascades(t *testing.T) {
	svc := newTestService(t)

	conv, err := svc.Create(1, "t", "")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	msg, err := svc.AppendMessage(conv.ID, "user", "看看这张图", "", true)
	if err != nil {
		t.Fatalf("AppendMessage error: %v", err)
	}
	img := models.MessageImage{MessageID: msg.ID, ConversationID: conv.ID, UserID: 1, OSSKey: "k"}
	if err := svc.db.Create(&img).Error; err != nil {
		t.Fatalf("创建图片记录失败: %v", err)
	}

	if err := svc.Delete(1, conv.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	var msgCount, imgCount int64
	svc.db.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&msgCount)
	svc.db.Model(&models.MessageImage{}).Where("conversation_id = ?", conv.ID).Count(&imgCount)
	if msgCount != 0 || imgCount != 0 {
		t.Fatalf("expected cascade delete, have %d messages %d images", msgCount, imgCount)
	}
}

type stubLLM struct {
	content string
	err     error
}

func (s *stubLLM) Complete(_ context.Context, _ string, _ []openai.ChatCompletionMessage) (*llm.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Content: s.content}, nil
}

func TestTitlerGenerateIfNeeded(t *testing.T) {
	svc := newTestService(t)

	conv, err := svc.Create(1, "", "")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := svc.AppendMessage(conv.ID, "user", "如何学习围棋？", "", false); err != nil {
		t.Fatalf("AppendMessage error: %v", err)
	}
	if _, err := svc.AppendMessage(conv.ID, "assistant", "可以从基本规则开始。", "", false); err != nil {
		t.Fatalf("AppendMessage error: %v", err)
	}

	titler := NewTitler(svc, &stubLLM{content: `"围棋入门"`})
	titler.GenerateIfNeeded(conv.ID, 2)

	got, err := svc.Get(1, conv.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Title != "围棋入门" {
		t.Fatalf("expected generated title, got %q", got.Title)
	}
}

func TestTitlerFallbackOnLLMError(t *testing.T) {
	svc := newTestService(t)

	conv, err := svc.Create(1, "", "")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	long := "这是一条非常非常长的用户消息需要被截断作为标题"
	if _, err := svc.AppendMessage(conv.ID, "user", long, "", false); err != nil {
		t.Fatalf("AppendMessage error: %v", err)
	}
	if _, err := svc.AppendMessage(conv.ID, "assistant", "好的", "", false); err != nil {
		t.Fatalf("AppendMessage error: %v", err)
	}

	titler := NewTitler(svc, &stubLLM{err: errors.New("boom")})
	titler.GenerateIfNeeded(conv.ID, 2)

	got, err := svc.Get(1, conv.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Title != truncateTitle(long, 10) {
		t.Fatalf("expected truncated fallback title, got %q", got.Title)
	}
}

func TestTitlerSkipsNamedConversations(t *testing.T) {
	svc := newTestService(t)

	conv, err := svc.Create(1, "自定义标题", "")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	titler := NewTitler(svc, &stubLLM{content: "不应使用"})
	titler.GenerateIfNeeded(conv.ID, 2)

	got, _ := svc.Get(1, conv.ID)
	if got.Title != "自定义标题" {
		t.Fatalf("custom title must not be overwritten, got %q", got.Title)
	}
}

func TestServiceMessageLookupAndDelete(t *testing.T) {
	svc := newTestService(t)

	conv, err := svc.Create(1, "t", "")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	msg, err := svc.AppendMessage(conv.ID, "user", "你好", "", false)
	if err != nil {
		t.Fatalf("AppendMessage error: %v", err)
	}

	got, err := svc.Message(1, msg.ID)
	if err != nil {
		t.Fatalf("Message error: %v", err)
	}
	if got.Content != "你好" || got.ConversationID != conv.ID {
		t.Fatalf("unexpected message %+v", got)
	}

	// 其他用户查询或删除都表现为不存在
	if _, err := svc.Message(2, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound for other user, got %v", err)
	}
	if err := svc.DeleteMessage(2, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound for other user's delete, got %v", err)
	}

	if err := svc.DeleteMessage(1, msg.ID); err != nil {
		t.Fatalf("DeleteMessage error: %v", err)
	}
	if _, err := svc.Message(1, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound after delete, got %v", err)
	}
	count, err := svc.MessageCount(conv.ID)
	if err != nil {
		t.Fatalf("MessageCount error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty conversation after delete, got %d messages", count)
	}

	if _, err := svc.Message(1, 9999); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound for unknown id, got %v", err)
	}
}
