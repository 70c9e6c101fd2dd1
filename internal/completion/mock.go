package completion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/tokens"
)

// MockCompleter replays scripted responses in order. Once the script is
// exhausted it keeps returning the last entry.
type MockCompleter struct {
	modelID string

	mu        sync.Mutex
	responses []string
	errs      []error
	calls     []Request
}

// NewMockCompleter creates a mock that answers with responses in order.
func NewMockCompleter(modelID string, responses ...string) *MockCompleter {
	return &MockCompleter{modelID: modelID, responses: responses}
}

// FailWith queues errors returned by the next calls, before any response.
func (m *MockCompleter) FailWith(errs ...error) *MockCompleter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return m
}

// Calls returns every request received so far.
func (m *MockCompleter) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockCompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("nil req was passed to MockCompleter.Complete")
	}

	start := time.Now()

	m.mu.Lock()
	n := len(m.calls)
	m.calls = append(m.calls, *req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		m.mu.Unlock()
		return nil, err
	}
	var text string
	switch {
	case len(m.responses) == 0:
		text = fmt.Sprintf("Mock response %d", n+1)
	case n < len(m.responses):
		text = m.responses[n]
	default:
		text = m.responses[len(m.responses)-1]
	}
	m.mu.Unlock()

	return &Response{
		Text:    text,
		ModelID: m.modelID,
		Usage: models.TokenUsage{
			InputTokens:  tokens.Estimate(req.System) + tokens.Estimate(req.Prompt),
			OutputTokens: tokens.Estimate(text),
		},
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

func (m *MockCompleter) Shutdown(ctx context.Context) error {
	return nil
}
