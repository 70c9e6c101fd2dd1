// Package completion wraps the hosted text-completion services a model
// policy can call. Every request is stateless; conversational memory comes
// from the transcript.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spboyer/textplay/internal/models"
)

// Engine names accepted by New.
const (
	EngineCopilot = "copilot-sdk"
	EngineGenAI   = "genai"
	EngineMock    = "mock"
)

// ErrEmptyResponse is returned when the service answered with no text.
var ErrEmptyResponse = errors.New("completion returned no text")

// Completer sends one prompt and returns the generated text.
type Completer interface {
	// Complete runs a single request/response round trip
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Shutdown releases any underlying client
	Shutdown(ctx context.Context) error
}

// Request is one completion call.
type Request struct {
	// System carries the standing instructions
	System string
	Prompt string
	// ModelID overrides the completer's default model when set
	ModelID string
	Timeout time.Duration
}

// Response is the result of one completion call.
type Response struct {
	Text       string
	ModelID    string
	Usage      models.TokenUsage
	DurationMs int64
}

// Config selects and configures a completer.
type Config struct {
	Engine  string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// New builds the completer named by cfg.Engine.
func New(ctx context.Context, cfg Config) (Completer, error) {
	switch cfg.Engine {
	case EngineCopilot, "":
		return NewCopilotCompleterBuilder(cfg.Model, nil).Build(), nil
	case EngineGenAI:
		return NewGenAICompleter(ctx, cfg.Model, cfg.APIKey)
	case EngineMock:
		return NewMockCompleter(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown completion engine %q (supported: %s, %s, %s)",
			cfg.Engine, EngineCopilot, EngineGenAI, EngineMock)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
