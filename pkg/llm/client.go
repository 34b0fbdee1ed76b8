// Package llm bridges the scanner to an OpenAI-compatible chat completion
// API. Two callers exist: the planner, which proposes an ordered tool plan,
// and the assessor, which turns the evidence ledger into a structured risk
// assessment. Both constrain outputs with JSON schemas and treat the model
// as an oracle; all fallback decisions live with the caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// pinnedTemperature requests deterministic sampling. The request field is
// omitempty, so a literal 0 never reaches the wire; the smallest nonzero
// float32 serializes and rounds to 0 upstream.
const pinnedTemperature = math.SmallestNonzeroFloat32

// ErrNoOutput marks completions that produced nothing usable. Retry
// strategies advance on this error only.
var ErrNoOutput = errors.New("no output generated")

// IsNoOutput reports whether the error is a no-output failure.
func IsNoOutput(err error) bool {
	return errors.Is(err, ErrNoOutput)
}

// ChatClient is the subset of the go-openai client the bridge uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// Client issues chat completions against an OpenAI-compatible endpoint.
type Client struct {
	chat ChatClient
}

// NewClient builds a client for the given API key and base URL. baseURL may
// point at any OpenAI-compatible provider.
func NewClient(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{chat: openai.NewClientWithConfig(cfg)}
}

// NewClientWithChat builds a client over a caller-provided chat
// implementation, used by tests.
func NewClientWithChat(chat ChatClient) *Client {
	return &Client{chat: chat}
}

// Complete runs one chat completion at temperature 0 and returns the text
// of the first choice. Empty responses surface as ErrNoOutput.
func (c *Client) Complete(ctx context.Context, model, system, user string) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: pinnedTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	response, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("model %s: %w", model, ErrNoOutput)
	}
	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("model %s: %w", model, ErrNoOutput)
	}
	return content, nil
}

// extractJSON strips markdown code fences and leading prose so schema
// validation sees the bare JSON document.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
