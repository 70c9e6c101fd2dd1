package policy

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spboyer/textplay/internal/completion"
	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/tokens"
	"github.com/spboyer/textplay/internal/transcript"
)

// Prompt strategies. They differ only in priming text and default context.
const (
	StrategyPlain     = "plain"
	StrategyThinking  = "thinking"
	StrategyMentalMap = "mental-map"
)

// ActionCue ends every model prompt.
const ActionCue = "\n\nAction:"

//go:embed prompts/*.md
var promptFS embed.FS

var strategyPrompts = map[string]string{
	StrategyPlain:     "prompts/plain.md",
	StrategyThinking:  "prompts/thinking.md",
	StrategyMentalMap: "prompts/mental_map.md",
}

// ModelConfig parameterizes the model-grounded policy.
type ModelConfig struct {
	Strategy string `mapstructure:"strategy"`
	// Priming overrides the strategy's built-in instructions
	Priming string `mapstructure:"priming"`
	// Context is a transcript context kind; empty picks the strategy default
	Context     string        `mapstructure:"context"`
	WindowSize  int           `mapstructure:"window_size"`
	TokenBudget int           `mapstructure:"token_budget"`
	ModelID     string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Model asks a completion service for the next action. All memory is carried
// by the transcript; each call is independent.
type Model struct {
	completer completion.Completer
	cfg       ModelConfig
	priming   string
	builder   transcript.ContextBuilder
}

// NewModel resolves cfg against the strategy defaults.
func NewModel(completer completion.Completer, cfg ModelConfig, counter tokens.Counter) (*Model, error) {
	if completer == nil {
		return nil, fmt.Errorf("model policy needs a completion service")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyThinking
	}
	path, ok := strategyPrompts[cfg.Strategy]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s, %s, %s)",
			cfg.Strategy, StrategyPlain, StrategyThinking, StrategyMentalMap)
	}

	priming := cfg.Priming
	if priming == "" {
		data, err := promptFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s prompt: %w", cfg.Strategy, err)
		}
		priming = strings.TrimSpace(string(data))
	}

	if cfg.Context == "" {
		cfg.Context = transcript.KindFullHistory
		if cfg.Strategy == StrategyMentalMap {
			cfg.Context = transcript.KindLatestOnly
		}
	}
	size := cfg.WindowSize
	if cfg.Context == transcript.KindTokenBudget {
		size = cfg.TokenBudget
	}
	builder, err := transcript.NewContextBuilder(cfg.Context, size, counter)
	if err != nil {
		return nil, err
	}

	return &Model{
		completer: completer,
		cfg:       cfg,
		priming:   priming,
		builder:   builder,
	}, nil
}

func (m *Model) Name() string { return NameModel }

// Priming is the strategy's standing instructions.
func (m *Model) Priming() string { return m.priming }

// Strategy is the resolved prompt strategy.
func (m *Model) Strategy() string { return m.cfg.Strategy }

// ContextKind is the resolved transcript context kind.
func (m *Model) ContextKind() string { return m.cfg.Context }

func (m *Model) ChooseAction(ctx context.Context, state models.TurnState, t *transcript.Transcript) (Decision, error) {
	resp, err := m.completer.Complete(ctx, &completion.Request{
		System:  m.priming,
		Prompt:  m.BuildPrompt(state, t),
		ModelID: m.cfg.ModelID,
		Timeout: m.cfg.Timeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Decision{}, fmt.Errorf("%w: %w", models.ErrOperatorInterrupt, ctx.Err())
		}
		return Decision{}, fmt.Errorf("%w: %w", models.ErrPolicyUnavailable, err)
	}

	action, err := ParseAction(resp.Text)
	if err != nil {
		return Decision{RawOutput: resp.Text, Usage: resp.Usage}, fmt.Errorf("%w: %w", models.ErrPolicyUnavailable, err)
	}
	return Decision{Action: action, RawOutput: resp.Text, Usage: resp.Usage}, nil
}

// BuildPrompt renders the conversation payload for one request. The priming
// travels as the system message, so it is left out here. Before the first
// turn the opening state stands in for the empty history.
func (m *Model) BuildPrompt(state models.TurnState, t *transcript.Transcript) string {
	var body string
	if t != nil {
		body = m.builder.Build(t.Unprimed())
	}
	if t == nil || t.Len() == 0 {
		if body != "" {
			body += "\n\n"
		}
		body += transcript.RenderState(state)
	}
	return body + ActionCue
}

// ErrNoAction is returned by ParseAction when the text has no non-blank line.
var ErrNoAction = errors.New("response contains no action")

// ParseAction takes the last non-blank line of text as the action. Earlier
// lines are the model's reasoning or notes and are discarded.
func ParseAction(text string) (string, error) {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line, nil
		}
	}
	return "", ErrNoAction
}
