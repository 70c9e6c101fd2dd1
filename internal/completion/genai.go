package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spboyer/textplay/internal/models"
	"google.golang.org/genai"
)

// DefaultGenAIModel is used when no model is configured for the genai engine.
const DefaultGenAIModel = "gemini-2.5-flash"

// generator is the slice of [genai.Models] the completer needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAICompleter calls the Gemini API through google.golang.org/genai.
type GenAICompleter struct {
	defaultModelID string
	models         generator
}

// NewGenAICompleter creates a client authenticated with apiKey.
func NewGenAICompleter(ctx context.Context, modelID, apiKey string) (*GenAICompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai engine requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return newGenAICompleter(modelID, client.Models), nil
}

func newGenAICompleter(modelID string, g generator) *GenAICompleter {
	if modelID == "" {
		modelID = DefaultGenAIModel
	}
	return &GenAICompleter{defaultModelID: modelID, models: g}
}

func (c *GenAICompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil req was passed to GenAICompleter.Complete")
	}

	modelID := c.defaultModelID
	if req.ModelID != "" {
		modelID = req.ModelID
	}

	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	var config *genai.GenerateContentConfig
	if req.System != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		}
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, modelID, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, fmt.Errorf("genai generate: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	out := &Response{
		Text:       text,
		ModelID:    modelID,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		out.Usage = models.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// Shutdown is a no-op; the genai client holds no persistent connection.
func (c *GenAICompleter) Shutdown(ctx context.Context) error {
	return nil
}
