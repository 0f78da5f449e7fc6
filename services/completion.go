package services

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const NoResponsePlaceholder = "(no response)"

type CompletionRequest struct {
	Turns       []Turn
	Model       string
	Temperature float32
	MaxTokens   int
}

// CompletionClient is the external language-model API. Implementations return
// the raw reply text; an empty string is not an error.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type CompletionSettings struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

func DefaultCompletionSettings() CompletionSettings {
	return CompletionSettings{
		Model:       "openai/gpt-4.1-mini",
		Temperature: 0.85,
		MaxTokens:   250,
		Timeout:     30 * time.Second,
	}
}

// EchoCompletion answers without a network call. It backs local development
// when no provider key is configured.
type EchoCompletion struct{}

func (EchoCompletion) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Turns) == 0 {
		return "", fmt.Errorf("empty prompt")
	}
	last := req.Turns[len(req.Turns)-1]
	return "Peace be with you. You said: " + strings.TrimSpace(last.Content), nil
}
