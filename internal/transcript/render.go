package transcript

import (
	"fmt"
	"strings"

	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/tokens"
)

// RenderMode selects one of the two built-in projections of a transcript.
type RenderMode string

const (
	FullHistory RenderMode = "full-history"
	LatestOnly  RenderMode = "latest-only"
)

// Context builder kinds accepted by NewContextBuilder.
const (
	KindFullHistory = string(FullHistory)
	KindLatestOnly  = string(LatestOnly)
	KindWindow      = "window"
	KindTokenBudget = "token-budget"
)

// ContextBuilder projects the unbounded transcript into the text handed to a
// policy. Implementations must not modify the transcript.
type ContextBuilder interface {
	Build(t *Transcript) string
}

// FullHistoryBuilder renders the priming string and every record.
type FullHistoryBuilder struct{}

func (FullHistoryBuilder) Build(t *Transcript) string {
	blocks := make([]string, 0, len(t.records))
	for _, r := range t.records {
		blocks = append(blocks, RenderRecord(r))
	}
	return joinBlocks(t.priming, blocks)
}

// LatestOnlyBuilder renders the priming string and the newest record only,
// including the raw model output that produced it. Earlier context has to be
// carried by that output.
type LatestOnlyBuilder struct{}

func (LatestOnlyBuilder) Build(t *Transcript) string {
	latest, ok := t.Latest()
	if !ok {
		return joinBlocks(t.priming, nil)
	}
	block := RenderRecord(latest)
	if strings.TrimSpace(latest.RawOutput) != "" {
		block += "\nYour Previous Response:\n" + strings.TrimSpace(latest.RawOutput)
	}
	return joinBlocks(t.priming, []string{block})
}

// WindowBuilder renders the priming string and the last Size records.
// A non-positive Size renders the full history.
type WindowBuilder struct {
	Size int
}

func (b WindowBuilder) Build(t *Transcript) string {
	records := t.records
	if b.Size > 0 && len(records) > b.Size {
		records = records[len(records)-b.Size:]
	}
	blocks := make([]string, 0, len(records))
	for _, r := range records {
		blocks = append(blocks, RenderRecord(r))
	}
	return joinBlocks(t.priming, blocks)
}

// TokenBudgetBuilder renders the newest records that fit in Budget tokens,
// counting the priming string. The latest record is always included.
type TokenBudgetBuilder struct {
	Budget  int
	Counter tokens.Counter
}

func (b TokenBudgetBuilder) Build(t *Transcript) string {
	counter := tokens.OrDefault(b.Counter)
	remaining := b.Budget - counter.Count(t.priming)

	var blocks []string
	for i := len(t.records) - 1; i >= 0; i-- {
		block := RenderRecord(t.records[i])
		cost := counter.Count(block)
		if len(blocks) > 0 && cost > remaining {
			break
		}
		remaining -= cost
		blocks = append(blocks, block)
	}
	// collected newest first
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return joinBlocks(t.priming, blocks)
}

// NewContextBuilder returns the builder for kind. size is the window length
// for "window" and the token budget for "token-budget".
func NewContextBuilder(kind string, size int, counter tokens.Counter) (ContextBuilder, error) {
	switch kind {
	case "", KindFullHistory:
		return FullHistoryBuilder{}, nil
	case KindLatestOnly:
		return LatestOnlyBuilder{}, nil
	case KindWindow:
		if size <= 0 {
			return nil, fmt.Errorf("window context needs a positive size, got %d", size)
		}
		return WindowBuilder{Size: size}, nil
	case KindTokenBudget:
		if size <= 0 {
			return nil, fmt.Errorf("token-budget context needs a positive budget, got %d", size)
		}
		return TokenBudgetBuilder{Budget: size, Counter: counter}, nil
	default:
		return nil, fmt.Errorf("unknown context kind %q (supported: %s, %s, %s, %s)",
			kind, KindFullHistory, KindLatestOnly, KindWindow, KindTokenBudget)
	}
}

// RenderRecord formats a single turn record.
func RenderRecord(r models.TurnRecord) string {
	return fmt.Sprintf("Chosen Action: %s\nLed to this Observation: %s\nwith Reward: %d\nwith Total Score: %d\nValid Actions: %s",
		r.Action,
		strings.TrimSpace(r.State.Observation),
		r.State.Reward,
		r.State.Score,
		FormatActions(r.State.LegalActions),
	)
}

// RenderState formats a state that no action has produced yet, such as the
// opening observation of an episode.
func RenderState(s models.TurnState) string {
	return fmt.Sprintf("Observation: %s\nwith Total Score: %d\nValid Actions: %s",
		strings.TrimSpace(s.Observation), s.Score, FormatActions(s.LegalActions))
}

// FormatActions renders an action list as "[a, b, c]".
func FormatActions(actions []string) string {
	return "[" + strings.Join(actions, ", ") + "]"
}

func joinBlocks(priming string, blocks []string) string {
	parts := make([]string, 0, len(blocks)+1)
	if priming != "" {
		parts = append(parts, priming)
	}
	parts = append(parts, blocks...)
	return strings.Join(parts, "\n\n")
}
