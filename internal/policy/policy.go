// Package policy provides the decision policies that pick one action per turn.
package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spboyer/textplay/internal/completion"
	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/tokens"
	"github.com/spboyer/textplay/internal/transcript"
)

// Names of the built-in policies.
const (
	NameFixed  = "fixed"
	NameHuman  = "human"
	NameMenu   = "menu"
	NameRandom = "random"
	NameModel  = "model"
)

// ErrUnknownPolicy is returned by New for names it does not recognize.
var ErrUnknownPolicy = errors.New("unknown policy")

// Policy chooses the next action from the current state and the episode's
// transcript. It must not mutate the transcript.
type Policy interface {
	Name() string
	ChooseAction(ctx context.Context, state models.TurnState, t *transcript.Transcript) (Decision, error)
}

// Decision is a candidate action plus what produced it. The candidate is
// validated by the caller before it reaches the environment.
type Decision struct {
	Action string
	// RawOutput is the unparsed model text, empty for non-model policies
	RawOutput string
	Usage     models.TokenUsage
}

// Primer is implemented by policies with standing instructions that belong
// at the top of the transcript.
type Primer interface {
	Priming() string
}

// Interactive is implemented by policies that need the operator's terminal
// and so cannot run concurrently with other episodes.
type Interactive interface {
	Interactive() bool
}

// Deps are the collaborators a policy may need.
type Deps struct {
	Completer completion.Completer
	In        io.Reader
	Out       io.Writer
	Counter   tokens.Counter
}

// Options are policy-specific settings, decoded into the selected policy's
// option struct.
type Options map[string]any

var descriptions = map[string]string{
	NameFixed:  "always sends the same action",
	NameHuman:  "reads each action from standard input",
	NameMenu:   "lets the operator pick from the legal actions",
	NameRandom: "picks a legal action uniformly at random",
	NameModel:  "asks a language model, grounded on the transcript",
}

// Names lists the built-in policies in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(descriptions))
}

// Describe returns a one-line description of a built-in policy.
func Describe(name string) string {
	return descriptions[name]
}

// New builds the policy registered under name.
func New(name string, deps Deps, opts Options) (Policy, error) {
	switch name {
	case NameFixed:
		var o FixedOptions
		if err := decodeOptions(opts, &o); err != nil {
			return nil, err
		}
		return NewFixed(o.Action), nil
	case NameHuman:
		var o HumanOptions
		if err := decodeOptions(opts, &o); err != nil {
			return nil, err
		}
		return NewHuman(deps.In, deps.Out, o), nil
	case NameMenu:
		var o HumanOptions
		if err := decodeOptions(opts, &o); err != nil {
			return nil, err
		}
		return NewMenu(deps.In, deps.Out, o), nil
	case NameRandom:
		var o RandomOptions
		if err := decodeOptions(opts, &o); err != nil {
			return nil, err
		}
		return NewRandom(o.Seed), nil
	case NameModel:
		var cfg ModelConfig
		if err := decodeOptions(opts, &cfg); err != nil {
			return nil, err
		}
		return NewModel(deps.Completer, cfg, deps.Counter)
	default:
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownPolicy, name, Names())
	}
}

func decodeOptions(opts Options, out any) error {
	if len(opts) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(opts)); err != nil {
		return fmt.Errorf("invalid policy options: %w", err)
	}
	return nil
}
