package policy

import (
	"context"

	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/transcript"
)

// DefaultFixedAction is sent by a fixed policy with no configured action.
const DefaultFixedAction = "open mailbox"

type FixedOptions struct {
	Action string `mapstructure:"action"`
}

// Fixed ignores the game and always answers with the same action.
type Fixed struct {
	action string
}

func NewFixed(action string) *Fixed {
	if action == "" {
		action = DefaultFixedAction
	}
	return &Fixed{action: action}
}

func (f *Fixed) Name() string { return NameFixed }

func (f *Fixed) ChooseAction(ctx context.Context, _ models.TurnState, _ *transcript.Transcript) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	return Decision{Action: f.action}, nil
}
