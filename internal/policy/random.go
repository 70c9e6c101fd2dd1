package policy

import (
	"context"
	"math/rand/v2"

	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/transcript"
	"github.com/spboyer/textplay/internal/validation"
)

type RandomOptions struct {
	// Seed makes the sequence of choices reproducible
	Seed *int64 `mapstructure:"seed"`
}

// Random picks uniformly from the legal actions.
type Random struct {
	rng *rand.Rand
}

// NewRandom seeds the policy; a nil seed draws one at random.
func NewRandom(seed *int64) *Random {
	return &Random{rng: NewRand(seed)}
}

// NewRand returns a PCG generator for seed, or a randomly seeded one when nil.
func NewRand(seed *int64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(*seed), 0))
}

func (r *Random) Name() string { return NameRandom }

func (r *Random) ChooseAction(ctx context.Context, state models.TurnState, _ *transcript.Transcript) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if err := validation.CheckVocabulary(state.LegalActions); err != nil {
		return Decision{}, err
	}
	return Decision{Action: state.LegalActions[r.rng.IntN(len(state.LegalActions))]}, nil
}
