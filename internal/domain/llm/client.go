// Package llm wraps the OpenAI-compatible completion endpoint used for
// chat generation and conversation title generation.
package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"aihelper-server-go/internal/platform/config"
	"aihelper-server-go/internal/platform/errors"
)

// Completion is one model answer. Reasoning carries the model's thinking
// trace when the backend returns one (DashScope reasoning models do).
type Completion struct {
	Content   string
	Reasoning string
}

// Client produces chat completions.
type Client interface {
	Complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (*Completion, error)
}

type openaiClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewClient builds a Client against the configured OpenAI-compatible
// base URL (DashScope compatible mode by default).
func NewClient(cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.KindConfig, "llm.NewClient", "LLM API key未配置")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openaiClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.ModelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (c *openaiClient) Complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (*Completion, error) {
	if model == "" {
		model = c.model
	}
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(errors.KindVendor, "llm.Complete", "调用大模型失败", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(errors.KindVendor, "llm.Complete", "大模型返回空结果")
	}
	choice := resp.Choices[0].Message
	return &Completion{
		Content:   choice.Content,
		Reasoning: choice.ReasoningContent,
	}, nil
}
