package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/policy"
	"github.com/spboyer/textplay/internal/statistics"
	"golang.org/x/sync/errgroup"
)

// Factory builds the orchestrator for episode index (0-based). Each call
// must return an orchestrator with its own environment, policy and
// transcript.
type Factory func(ctx context.Context, index int) (*Orchestrator, error)

// BatchResult collects the outcome of RunEpisodes.
type BatchResult struct {
	// Results is indexed by episode; nil where the episode never started
	Results []*models.EpisodeResult
	// Errors holds each episode's fatal error, if any
	Errors  []error
	Summary BatchSummary
}

// BatchSummary aggregates scores across finished episodes.
type BatchSummary struct {
	Episodes       int                `json:"episodes"`
	Completed      int                `json:"completed"`
	Failed         int                `json:"failed"`
	InvalidActions int                `json:"invalid_actions"`
	Usage          models.TokenUsage  `json:"usage"`
	Score          statistics.Summary `json:"score"`
	Normalized     statistics.Summary `json:"normalized"`
}

// EffectiveWorkers caps workers at one for policies that read from the
// operator's terminal.
func EffectiveWorkers(p policy.Policy, workers int) int {
	if i, ok := p.(policy.Interactive); ok && i.Interactive() {
		return 1
	}
	return max(workers, 1)
}

// RunEpisodes runs n independent episodes with at most workers in flight.
// A fatal error in one episode does not stop the others; an interrupt or a
// factory error does.
func RunEpisodes(ctx context.Context, n, workers int, factory Factory) (*BatchResult, error) {
	out := &BatchResult{
		Results: make([]*models.EpisodeResult, n),
		Errors:  make([]error, n),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for i := range n {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			o, err := factory(gctx, i)
			if err != nil {
				return fmt.Errorf("episode %d: %w", i+1, err)
			}
			defer func() {
				if cerr := o.Close(); cerr != nil {
					slog.Warn("failed to close environment", "episode_id", o.EpisodeID(), "error", cerr)
				}
			}()

			res, err := o.Run(gctx)
			out.Results[i] = res
			out.Errors[i] = err
			if errors.Is(err, models.ErrOperatorInterrupt) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	out.Summary = Summarize(out.Results, 0)
	return out, err
}

// Summarize aggregates results; nil entries are skipped. seed follows
// statistics.BootstrapCIWithSeed.
func Summarize(results []*models.EpisodeResult, seed int64) BatchSummary {
	var s BatchSummary
	var scores, normalized []float64
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Episodes++
		switch r.Reason {
		case models.ReasonDone, models.ReasonMaxTurns:
			s.Completed++
		case models.ReasonInterrupted:
		default:
			s.Failed++
		}
		s.InvalidActions += r.InvalidActions
		s.Usage = s.Usage.Add(r.Usage)
		scores = append(scores, float64(r.Score))
		normalized = append(normalized, statistics.NormalizedScore(r.Score, r.MaxScore))
	}
	s.Score = statistics.Summarize(scores, seed)
	s.Normalized = statistics.Summarize(normalized, seed)
	return s
}
