package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/transcript"
	"golang.org/x/term"
)

// Menu offers the legal actions as a selectable list when attached to a
// terminal and falls back to line input otherwise.
type Menu struct {
	in       io.Reader
	out      io.Writer
	fallback *Human

	// isTerminal is a test hook
	isTerminal func(io.Reader) bool
}

func NewMenu(in io.Reader, out io.Writer, opts HumanOptions) *Menu {
	return &Menu{
		in:         in,
		out:        out,
		fallback:   NewHuman(in, out, opts),
		isTerminal: isTerminal,
	}
}

func (m *Menu) Name() string { return NameMenu }

func (m *Menu) Interactive() bool { return true }

func (m *Menu) ChooseAction(ctx context.Context, state models.TurnState, t *transcript.Transcript) (Decision, error) {
	if !m.isTerminal(m.in) || len(state.LegalActions) == 0 {
		return m.fallback.ChooseAction(ctx, state, t)
	}

	options := make([]huh.Option[string], 0, len(state.LegalActions))
	for _, a := range state.LegalActions {
		options = append(options, huh.NewOption(a, a))
	}

	var action string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title(fmt.Sprintf("Score: %d", state.Score)).
				Description(state.Observation),
			huh.NewSelect[string]().
				Title("Action").
				Options(options...).
				Value(&action),
		),
	).WithInput(m.in).WithOutput(m.out).RunWithContext(ctx)

	switch {
	case errors.Is(err, huh.ErrUserAborted):
		return Decision{}, fmt.Errorf("%w: menu aborted", models.ErrOperatorInterrupt)
	case ctx.Err() != nil:
		return Decision{}, fmt.Errorf("%w: %w", models.ErrOperatorInterrupt, ctx.Err())
	case err != nil:
		return Decision{}, fmt.Errorf("%w: menu failed: %w", models.ErrPolicyUnavailable, err)
	}
	return Decision{Action: action}, nil
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
