package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/molthive/hivebot/pkg/types"
)

// OllamaBackend talks to a local Ollama-compatible inference server over
// its /api/chat endpoint.
type OllamaBackend struct {
	host   string
	model  string
	client *http.Client
}

// OllamaConfig holds configuration for the Ollama backend.
type OllamaConfig struct {
	Host    string        // e.g. "http://localhost:11434"
	Model   string        // e.g. "qwen2.5:3b"
	Timeout time.Duration // per-call timeout; 0 means 120s
}

// NewOllamaBackend creates an Ollama backend.
func NewOllamaBackend(cfg OllamaConfig) *OllamaBackend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OllamaBackend{
		host:   cfg.Host,
		model:  cfg.Model,
		client: &http.Client{Timeout: timeout},
	}
}

// Name identifies the backend.
func (b *OllamaBackend) Name() string { return "ollama/" + b.model }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Generate produces a completion through the chat endpoint.
func (b *OllamaBackend) Generate(ctx context.Context, req GenerateRequest) (string, types.TokenUsage, error) {
	payload := ollamaChatRequest{
		Model:  b.model,
		Stream: false,
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, ollamaMessage{Role: "user", Content: req.Prompt})
	payload.Options.Temperature = req.Temperature

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.TokenUsage{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", types.TokenUsage{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", types.TokenUsage{}, &UnavailableError{Backend: b.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.TokenUsage{}, &UnavailableError{
			Backend: b.Name(),
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", types.TokenUsage{}, &UnavailableError{Backend: b.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	usage := types.TokenUsage{
		PromptTokens:     chat.PromptEvalCount,
		CompletionTokens: chat.EvalCount,
	}
	return chat.Message.Content, usage, nil
}

// CheckHealth verifies the server is reachable, retrying with a fixed
// delay. Used at startup before any agent is allowed to run.
func (b *OllamaBackend) CheckHealth(ctx context.Context, retries int, delay time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, b.host+"/api/tags", nil)
		if err != nil {
			cancel()
			return err
		}
		resp, err := b.client.Do(req)
		cancel()
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		lastErr = err
		logrus.WithError(err).Warnf("inference health check attempt %d/%d failed", attempt, retries)

		if attempt < retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return &UnavailableError{Backend: b.Name(), Err: lastErr}
}
