package validation

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/spboyer/textplay/internal/models"
)

// ActionValidator reconciles a candidate action with the legal vocabulary.
// Matching is exact and case-sensitive; anything else is replaced by a
// uniformly random legal action.
type ActionValidator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewActionValidator returns a validator drawing substitutes from rng.
// A nil rng uses a randomly seeded source.
func NewActionValidator(rng *rand.Rand) *ActionValidator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &ActionValidator{rng: rng}
}

// Validate returns candidate unchanged when it is a member of legal. Otherwise
// it returns a random member of legal together with an *InvalidActionError;
// the returned action is usable either way. An empty legal list is an
// environment protocol error and yields no action.
func (v *ActionValidator) Validate(candidate string, legal []string) (string, error) {
	if err := CheckVocabulary(legal); err != nil {
		return "", err
	}
	if slices.Contains(legal, candidate) {
		return candidate, nil
	}

	v.mu.Lock()
	substitute := legal[v.rng.IntN(len(legal))]
	v.mu.Unlock()

	return substitute, &models.InvalidActionError{Candidate: candidate, Substitute: substitute}
}

// CheckVocabulary fails when no legal action is available mid-episode.
func CheckVocabulary(legal []string) error {
	if len(legal) == 0 {
		return fmt.Errorf("%w: no legal actions offered", models.ErrEnvironmentProtocol)
	}
	return nil
}
