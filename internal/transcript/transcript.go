// Package transcript keeps the append-only record of an episode and projects
// it into grounding context for the next decision.
package transcript

import (
	"errors"
	"slices"

	"github.com/spboyer/textplay/internal/models"
)

// ErrEmptyAction is returned by Append when no action is given.
var ErrEmptyAction = errors.New("transcript: chosen action must not be empty")

// Transcript is an ordered log of turn records plus a fixed priming string.
// It grows monotonically and is never compacted; bounded views are produced
// by a ContextBuilder. A Transcript belongs to a single episode and is not
// safe for concurrent use.
type Transcript struct {
	priming string
	records []models.TurnRecord
}

// New creates an empty transcript with the given standing instructions.
func New(priming string) *Transcript {
	return &Transcript{priming: priming}
}

// Priming returns the standing instructions set at construction.
func (t *Transcript) Priming() string {
	return t.priming
}

// Append adds one record. rawOutput may be empty for policies that do not
// produce free text.
func (t *Transcript) Append(action string, state models.TurnState, rawOutput string) error {
	if action == "" {
		return ErrEmptyAction
	}
	state.LegalActions = slices.Clone(state.LegalActions)
	t.records = append(t.records, models.TurnRecord{
		Turn:      len(t.records) + 1,
		Action:    action,
		State:     state,
		RawOutput: rawOutput,
	})
	return nil
}

// Len is the number of records.
func (t *Transcript) Len() int {
	return len(t.records)
}

// Records returns a copy of every record in append order.
func (t *Transcript) Records() []models.TurnRecord {
	return slices.Clone(t.records)
}

// Latest returns the most recent record, if any.
func (t *Transcript) Latest() (models.TurnRecord, bool) {
	if len(t.records) == 0 {
		return models.TurnRecord{}, false
	}
	return t.records[len(t.records)-1], true
}

// Unprimed returns a read-only view of the same records with no priming
// string, for callers that send the priming separately.
func (t *Transcript) Unprimed() *Transcript {
	return &Transcript{records: t.records[:len(t.records):len(t.records)]}
}

// Render produces the text for mode. It is a pure function of the current
// records and may be called any number of times.
func (t *Transcript) Render(mode RenderMode) string {
	switch mode {
	case LatestOnly:
		return LatestOnlyBuilder{}.Build(t)
	default:
		return FullHistoryBuilder{}.Build(t)
	}
}
