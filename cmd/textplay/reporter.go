package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/orchestration"
	"github.com/spboyer/textplay/internal/transcript"
)

// formatDuration formats a duration in a consistent, human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(time.Millisecond).String()
}

// turnReporter prints the game as it is played. It is used for single
// episode runs; batches only print one line per finished episode.
type turnReporter struct {
	w       io.Writer
	verbose bool
	// quiet skips observations, for policies that already show them
	quiet bool
	// wait starts a progress indicator while the policy decides
	wait func(message string) (stop func())

	mu   sync.Mutex
	stop func()
}

//nolint:errcheck // display-only writes
func (r *turnReporter) listen(e orchestration.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.EventType != orchestration.EventTurnStart && r.stop != nil {
		r.stop()
		r.stop = nil
	}

	switch e.EventType {
	case orchestration.EventEpisodeStart:
		if !r.quiet {
			fmt.Fprintln(r.w, strings.TrimSpace(e.State.Observation))
			fmt.Fprintf(r.w, "Valid actions: %s\n\n", transcript.FormatActions(e.State.LegalActions))
		}

	case orchestration.EventTurnStart:
		if r.wait != nil {
			r.stop = r.wait(fmt.Sprintf("Turn %d: thinking...", e.Turn))
		}

	case orchestration.EventInvalidAction:
		fmt.Fprintf(r.w, "⚠ %q is not a valid action, using %q instead\n", e.Candidate, e.Action)

	case orchestration.EventTurnComplete:
		if r.verbose && e.RawOutput != "" {
			fmt.Fprintf(r.w, "--- model output ---\n%s\n--------------------\n", strings.TrimSpace(e.RawOutput))
		}
		fmt.Fprintf(r.w, "> %s\n", e.Action)
		if !r.quiet {
			fmt.Fprintln(r.w, strings.TrimSpace(e.State.Observation))
		}
		fmt.Fprintf(r.w, "[turn %d] reward %+d, score %d, moves %d\n", e.Turn, e.State.Reward, e.State.Score, e.Moves)
		if !r.quiet && len(e.State.LegalActions) > 0 {
			fmt.Fprintf(r.w, "Valid actions: %s\n", transcript.FormatActions(e.State.LegalActions))
		}
		fmt.Fprintln(r.w)

	case orchestration.EventExportFailed:
		if r.verbose {
			fmt.Fprintf(r.w, "(transcript export failed: %v)\n", e.Err)
		}

	case orchestration.EventEpisodeComplete:
		if e.Result != nil {
			printResult(r.w, e.Result)
		}
	}
}

//nolint:errcheck // display-only writes
func printResult(w io.Writer, res *models.EpisodeResult) {
	fmt.Fprintf(w, "Scored %d out of %d\n", res.Score, res.MaxScore)
	fmt.Fprintf(w, "%d turns, %d moves, %d invalid actions, %s (%s)\n",
		res.Steps, res.Moves, res.InvalidActions, res.Reason, formatDuration(time.Duration(res.DurationMs)*time.Millisecond))
	if res.Usage.Total() > 0 {
		fmt.Fprintf(w, "Tokens: %d in, %d out\n", res.Usage.InputTokens, res.Usage.OutputTokens)
	}
}

// printEpisodeLine reports one finished episode of a batch.
//
//nolint:errcheck // display-only writes
func printEpisodeLine(w io.Writer, index int, res *models.EpisodeResult, err error) {
	if res == nil {
		return
	}
	status := "✅"
	if err != nil {
		status = "❌"
	}
	fmt.Fprintf(w, "%s episode %d: scored %d out of %d in %d turns (%s)\n",
		status, index+1, res.Score, res.MaxScore, res.Steps, res.Reason)
}

// printBatchSummary prints aggregate statistics for a multi-episode run.
//
//nolint:errcheck // display-only writes
func printBatchSummary(w io.Writer, s orchestration.BatchSummary) {
	rows := [][2]string{
		{"Episodes", fmt.Sprintf("%d (%d completed, %d failed)", s.Episodes, s.Completed, s.Failed)},
		{"Mean score", fmt.Sprintf("%.2f", s.Score.Mean)},
		{"95% CI", fmt.Sprintf("[%.2f, %.2f]", s.Score.CI.Lower, s.Score.CI.Upper)},
		{"Min / max", fmt.Sprintf("%.0f / %.0f", s.Score.Min, s.Score.Max)},
		{"Normalized", fmt.Sprintf("%.1f%%", s.Normalized.Mean*100)},
		{"Invalid actions", fmt.Sprintf("%d", s.InvalidActions)},
	}
	if s.Usage.Total() > 0 {
		rows = append(rows, [2]string{"Tokens", fmt.Sprintf("%d in, %d out", s.Usage.InputTokens, s.Usage.OutputTokens)})
	}

	width := 0
	for _, row := range rows {
		width = max(width, runewidth.StringWidth(row[0]))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════")
	fmt.Fprintln(w, " BATCH SUMMARY")
	fmt.Fprintln(w, "═══════════════════════════════════════")
	for _, row := range rows {
		fmt.Fprintf(w, "%s  %s\n", padRight(row[0], width), row[1])
	}
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}
