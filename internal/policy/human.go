package policy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/transcript"
)

// DefaultPrompt is printed before reading an action.
const DefaultPrompt = "> "

type HumanOptions struct {
	Prompt string `mapstructure:"prompt"`
	// Quiet skips printing the observation, for front ends that already show it
	Quiet bool `mapstructure:"quiet"`
}

// Human shows the state on Out and waits for one line on In. There is no
// timeout; cancellation and end of input end the episode as an operator
// interrupt.
type Human struct {
	in   io.Reader
	out  io.Writer
	opts HumanOptions

	once  sync.Once
	lines chan string
}

func NewHuman(in io.Reader, out io.Writer, opts HumanOptions) *Human {
	if out == nil {
		out = io.Discard
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	return &Human{in: in, out: out, opts: opts}
}

func (h *Human) Name() string { return NameHuman }

func (h *Human) Interactive() bool { return true }

func (h *Human) ChooseAction(ctx context.Context, state models.TurnState, _ *transcript.Transcript) (Decision, error) {
	if h.in == nil {
		return Decision{}, fmt.Errorf("%w: no input attached", models.ErrPolicyUnavailable)
	}
	if !h.opts.Quiet {
		printState(h.out, state)
	}

	h.once.Do(h.startReader)

	for {
		fmt.Fprint(h.out, h.opts.Prompt)
		select {
		case <-ctx.Done():
			return Decision{}, fmt.Errorf("%w: %w", models.ErrOperatorInterrupt, ctx.Err())
		case line, ok := <-h.lines:
			if !ok {
				return Decision{}, fmt.Errorf("%w: end of input", models.ErrOperatorInterrupt)
			}
			if action := strings.TrimSpace(line); action != "" {
				return Decision{Action: action}, nil
			}
		}
	}
}

// startReader pumps lines from In for the lifetime of the process. A read
// blocked on a terminal cannot be interrupted, so the reader outlives any
// single ChooseAction call and the next call picks up the pending line.
func (h *Human) startReader() {
	h.lines = make(chan string)
	go func() {
		defer close(h.lines)
		scanner := bufio.NewScanner(h.in)
		for scanner.Scan() {
			h.lines <- scanner.Text()
		}
	}()
}

func printState(w io.Writer, state models.TurnState) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.TrimSpace(state.Observation))
	fmt.Fprintf(w, "Score: %d\n", state.Score)
	fmt.Fprintf(w, "Valid actions: %s\n", transcript.FormatActions(state.LegalActions))
}
