package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alexberardi/jarvis-recipes-server/internal/config"
)

// LLMClient talks to the internal LLM proxy. The proxy speaks an
// OpenAI-compatible chat completion shape and authenticates callers with
// app-id/app-key headers.
type LLMClient struct {
	http    *resty.Client
	baseURL string
	appID   string
	appKey  string
}

// ChatMessage is one message in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the request body for chat completion.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse is the chat completion response body.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewLLMClient creates a proxy client from config.
func NewLLMClient(cfg *config.LLMConfig) *LLMClient {
	http := resty.New().
		SetTimeout(time.Duration(cfg.Timeout) * time.Second).
		SetHeader("Content-Type", "application/json")
	return &LLMClient{
		http:    http,
		baseURL: cfg.BaseURL,
		appID:   cfg.AppID,
		appKey:  cfg.AppKey,
	}
}

// ChatCompletion sends one system+user exchange and returns the assistant
// message content.
func (c *LLMClient) ChatCompletion(ctx context.Context, modelName, system, user string) (string, error) {
	reqBody := ChatCompletionRequest{
		Model: modelName,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.1,
		MaxTokens:   4096,
	}

	var chatResp ChatCompletionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Jarvis-App-Id", c.appID).
		SetHeader("X-Jarvis-App-Key", c.appKey).
		SetBody(reqBody).
		SetResult(&chatResp).
		Post(c.baseURL + "/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm proxy request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("llm proxy error (status %d): %s", resp.StatusCode(), resp.String())
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("llm proxy returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// IsConfigured returns true if the client has valid configuration.
func (c *LLMClient) IsConfigured() bool {
	return c.baseURL != "" && c.appID != "" && c.appKey != ""
}
