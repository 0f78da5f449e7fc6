package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterCompletion talks to any OpenAI-compatible chat completions endpoint,
// OpenRouter by default.
type OpenRouterCompletion struct {
	client *openai.Client
}

func NewOpenRouterCompletion(apiKey, baseURL string, httpClient *http.Client) (*OpenRouterCompletion, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("missing OPENROUTER_API_KEY")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenRouterCompletion{client: openai.NewClientWithConfig(cfg)}, nil
}

func (c *OpenRouterCompletion) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Turns))
	for _, t := range req.Turns {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openAIRole(t.Role), Content: t.Content})
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openrouter chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIRole(r Role) string {
	switch r {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
