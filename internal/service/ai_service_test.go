package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prepcourse_backend/internal/config"

	"github.com/go-resty/resty/v2"
)

func newAITestServer(t *testing.T, handler http.HandlerFunc) *AIService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAIServiceWithClient(config.AIConfig{
		BaseURL:        srv.URL + "/v1/",
		APIKey:         "test-key",
		Model:          "test-model",
		TimeoutSeconds: 5,
		MaxTokens:      512,
	}, resty.New())
}

func TestAIService_Complete(t *testing.T) {
	var got ChatCompletionRequest
	svc := newAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"ok\":true}  "},"finish_reason":"stop"}]}`))
	})

	content, err := svc.Complete(context.Background(), CompletionRequest{
		Purpose:     "test_generation",
		System:      "sys",
		Prompt:      "hello",
		Temperature: 0.3,
		JSON:        true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("content = %q", content)
	}
	if got.Model != "test-model" || got.MaxTokens != 512 || got.Temperature != 0.3 {
		t.Fatalf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("response_format = %+v", got.ResponseFormat)
	}
}

func TestAIService_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		svc := newAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited"}}`))
		})
		_, err := svc.Complete(context.Background(), CompletionRequest{Prompt: "x"})
		if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("empty content", func(t *testing.T) {
		svc := newAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"   "}}]}`))
		})
		if _, err := svc.Complete(context.Background(), CompletionRequest{Prompt: "x"}); !errors.Is(err, ErrEmptyCompletion) {
			t.Fatalf("err = %v, want ErrEmptyCompletion", err)
		}
	})

	t.Run("no choices", func(t *testing.T) {
		svc := newAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"choices":[]}`))
		})
		if _, err := svc.Complete(context.Background(), CompletionRequest{Prompt: "x"}); err == nil {
			t.Fatalf("expected an error for an empty choice list")
		}
	})
}

func TestAIService_UpdateConfig(t *testing.T) {
	var model string
	svc := newAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		model = req.Model
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	cfg := svc.currentConfig()
	cfg.Model = "other-model"
	svc.UpdateConfig(cfg)

	if _, err := svc.Complete(context.Background(), CompletionRequest{Prompt: "x"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if model != "other-model" {
		t.Fatalf("model = %q, want other-model", model)
	}
}
