package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/molthive/hivebot/pkg/types"
)

// GeminiBackend implements Backend using Google GenAI Gemini. It is the
// hosted alternative to the local Ollama backend; the arbiter treats both
// identically.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// GeminiConfig holds configuration for the Gemini backend.
type GeminiConfig struct {
	APIKey string // If empty, uses GOOGLE_API_KEY env var
	Model  string // e.g., "gemini-3-pro"
}

// NewGeminiBackend creates a new Gemini backend.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = os.Getenv("GOOGLE_MODEL")
	}
	if model == "" {
		model = "gemini-3-pro"
	}

	return &GeminiBackend{
		client: client,
		model:  model,
	}, nil
}

// Name identifies the backend.
func (b *GeminiBackend) Name() string { return "gemini/" + b.model }

// Generate produces a response from Gemini.
func (b *GeminiBackend) Generate(ctx context.Context, req GenerateRequest) (string, types.TokenUsage, error) {
	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(req.Prompt), config)
	if err != nil {
		return "", types.TokenUsage{}, &UnavailableError{Backend: b.Name(), Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", types.TokenUsage{}, &UnavailableError{Backend: b.Name(), Err: fmt.Errorf("no candidates in response")}
	}

	var result string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			result += part.Text
		}
	}

	var usage types.TokenUsage
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return result, usage, nil
}
