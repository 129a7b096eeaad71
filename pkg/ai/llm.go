package ai

import (
	"context"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/pkg/config"
)

const llmService = "llm"

// LLMClient is a minimal client for OpenAI-compatible chat completion APIs
type LLMClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewLLMClient creates a chat client from the provided config
func NewLLMClient(cfg *config.LLMConfig) *LLMClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LLMClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

// ChatMessage is one chat turn
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the shape for chat completion requests
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatResponse is a minimal response shape
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends a system and user prompt and returns the assistant content
func (c *LLMClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]ChatMessage, 0, 2)
	if system != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	reqBody := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	var cr ChatResponse
	if err := doJSON(ctx, c.client, llmService, http.MethodPost, c.baseURL+"/chat/completions", header, reqBody, &cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", &apperrors.FailureError{Service: llmService, Message: "response contained no choices"}
	}
	return cr.Choices[0].Message.Content, nil
}
