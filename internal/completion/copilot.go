package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/tokens"
)

// CopilotCompleter sends each request through a fresh GitHub Copilot SDK session.
type CopilotCompleter struct {
	defaultModelID string

	client  copilotClient
	counter tokens.Counter

	startOnce sync.Once
	startErr  error
}

// CopilotCompleterBuilder builds a CopilotCompleter with options
type CopilotCompleterBuilder struct {
	completer *CopilotCompleter
}

type CopilotCompleterBuilderOptions struct {
	NewCopilotClient func(clientOptions *copilot.ClientOptions) copilotClient

	// Counter estimates token usage, which the SDK does not report
	Counter tokens.Counter
}

// NewCopilotCompleterBuilder creates a builder for CopilotCompleter
//   - defaultModelID - used if the request names no model. Can be blank, which means the copilot
//     CLI will choose its own fallback model.
func NewCopilotCompleterBuilder(defaultModelID string, options *CopilotCompleterBuilderOptions) *CopilotCompleterBuilder {
	copilotOptions := &copilot.ClientOptions{
		LogLevel:  "error",
		AutoStart: copilot.Bool(false),
	}

	var client copilotClient
	var counter tokens.Counter

	if options == nil || options.NewCopilotClient == nil {
		client = newCopilotClient(copilotOptions)
	} else {
		client = options.NewCopilotClient(copilotOptions)
	}
	if options != nil {
		counter = options.Counter
	}

	return &CopilotCompleterBuilder{
		completer: &CopilotCompleter{
			defaultModelID: defaultModelID,
			client:         client,
			counter:        tokens.OrDefault(counter),
		},
	}
}

func (b *CopilotCompleterBuilder) Build() *CopilotCompleter {
	return b.completer
}

// Complete sends req.Prompt in a new session whose system message is req.System.
func (c *CopilotCompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil req was passed to CopilotCompleter.Complete")
	}

	c.startOnce.Do(func() {
		// copilot client has an 'autostart' feature, but it runs into issues
		// when it tries to autostart from separate goroutines.
		c.startErr = c.client.Start(ctx)
	})

	if c.startErr != nil {
		return nil, fmt.Errorf("copilot failed to start: %w", c.startErr)
	}

	modelID := c.defaultModelID
	if req.ModelID != "" {
		modelID = req.ModelID
	}

	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	start := time.Now()

	config := &copilot.SessionConfig{
		Model:               modelID,
		OnPermissionRequest: denyAllTools,
	}
	if req.System != "" {
		config.SystemMessage = &copilot.SystemMessageConfig{Content: req.System}
	}

	session, err := c.client.CreateSession(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	// Each request gets a fresh session, so release it on the server.
	defer func() {
		if err := session.Disconnect(); err != nil {
			slog.Debug("failed to disconnect copilot session", "error", err)
		}
	}()

	collector := newMessageCollector()

	unsubscribe := session.On(collector.On)
	defer unsubscribe()

	unsubscribe = session.On(sessionToSlog)
	defer unsubscribe()

	if _, err := session.SendAndWait(ctx, copilot.MessageOptions{Prompt: req.Prompt}); err != nil {
		return nil, fmt.Errorf("copilot session %s: %w", session.SessionID(), err)
	}
	if msg := collector.ErrorMessage(); msg != "" {
		return nil, fmt.Errorf("copilot session %s: %s", session.SessionID(), msg)
	}

	text := collector.Text()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:    text,
		ModelID: modelID,
		Usage: models.TokenUsage{
			InputTokens:  tokens.CountAll(c.counter, req.System, req.Prompt),
			OutputTokens: c.counter.Count(text),
		},
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Shutdown stops the copilot client
func (c *CopilotCompleter) Shutdown(ctx context.Context) error {
	if err := c.client.Stop(); err != nil {
		slog.Info("failed to stop client", "error", err)
	}
	return nil
}

// messageCollector keeps the assistant messages and any session error.
type messageCollector struct {
	mu       sync.Mutex
	parts    []string
	errorMsg string
}

func newMessageCollector() *messageCollector {
	return &messageCollector{}
}

// On is a callback, intended to be passed to [copilot.Session.On].
func (coll *messageCollector) On(event copilot.SessionEvent) {
	coll.mu.Lock()
	defer coll.mu.Unlock()

	switch event.Type {
	case copilot.AssistantMessage:
		if event.Data.Content != nil {
			coll.parts = append(coll.parts, *event.Data.Content)
		}
	case copilot.SessionError:
		if event.Data.Message == nil || *event.Data.Message == "" {
			coll.errorMsg = "session failed with unknown error"
		} else {
			coll.errorMsg = *event.Data.Message
		}
	}
}

// Text joins the assistant messages in arrival order.
func (coll *messageCollector) Text() string {
	coll.mu.Lock()
	defer coll.mu.Unlock()
	return strings.Join(coll.parts, "\n")
}

func (coll *messageCollector) ErrorMessage() string {
	coll.mu.Lock()
	defer coll.mu.Unlock()
	return coll.errorMsg
}

func sessionToSlog(event copilot.SessionEvent) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []any{
		"type", event.Type,
	}

	attrs = addIf(attrs, "content", event.Data.Content)
	attrs = addIf(attrs, "deltaContent", event.Data.DeltaContent)
	attrs = addIf(attrs, "reasoningText", event.Data.ReasoningText)
	attrs = addIf(attrs, "toolName", event.Data.ToolName)

	slog.Debug("Event received", attrs...)
}

func addIf[T any](attrs []any, name string, v *T) []any {
	if v != nil {
		attrs = append(attrs, name, *v)
	}
	return attrs
}

// A game-playing model only ever answers in text.
func denyAllTools(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
	return copilot.PermissionRequestResult{Kind: "denied-interactively-by-user"}, nil
}
