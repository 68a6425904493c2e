package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"prepcourse_backend/internal/config"
	"prepcourse_backend/pkg/monitoring"

	"github.com/go-resty/resty/v2"
)

// ErrEmptyCompletion is returned when the model answered with no text.
var ErrEmptyCompletion = errors.New("completion returned no content")

type CompletionRequest struct {
	Purpose     string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the endpoint for a JSON object response.
	JSON bool
}

// Completer turns a prompt into a text completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []AIChatMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message      AIChatMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// AIService talks to an OpenAI-compatible /chat/completions endpoint.
type AIService struct {
	mu     sync.RWMutex
	config config.AIConfig
	client *resty.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return NewAIServiceWithClient(cfg, resty.New())
}

// NewAIServiceWithClient lets tests point the service at an httptest server.
func NewAIServiceWithClient(cfg config.AIConfig, client *resty.Client) *AIService {
	client.SetHeader("Content-Type", "application/json")
	return &AIService{config: cfg, client: client}
}

// UpdateConfig swaps endpoint, model and limits for subsequent calls.
func (s *AIService) UpdateConfig(cfg config.AIConfig) {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
}

func (s *AIService) currentConfig() config.AIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *AIService) Complete(ctx context.Context, req CompletionRequest) (content string, err error) {
	start := time.Now()
	defer func() { monitoring.ObserveCompletion(req.Purpose, start, err) }()

	cfg := s.currentConfig()
	if timeout := cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	messages := make([]AIChatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, AIChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, AIChatMessage{Role: "user", Content: req.Prompt})

	body := ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = cfg.MaxTokens
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var result ChatCompletionResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(cfg.APIKey).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}

	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode(), msg)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("AI returned no choices")
	}

	content = strings.TrimSpace(result.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
