package models

import "time"

// TerminationReason says why an episode stopped.
type TerminationReason string

const (
	ReasonDone              TerminationReason = "done"
	ReasonMaxTurns          TerminationReason = "max_turns"
	ReasonInterrupted       TerminationReason = "interrupted"
	ReasonPolicyUnavailable TerminationReason = "policy_unavailable"
	ReasonEnvironmentError  TerminationReason = "environment_error"
)

// EpisodeResult is the terminal summary of one episode. Fatal terminations
// still populate every field known at the time of failure.
type EpisodeResult struct {
	EpisodeID      string            `json:"episode_id"`
	Policy         string            `json:"policy"`
	Score          int               `json:"score"`
	MaxScore       int               `json:"max_score"`
	Moves          int               `json:"moves"`
	Steps          int               `json:"steps"`
	InvalidActions int               `json:"invalid_actions"`
	Reason         TerminationReason `json:"reason"`
	Usage          TokenUsage        `json:"usage"`
	StartedAt      time.Time         `json:"started_at"`
	DurationMs     int64             `json:"duration_ms"`
	ErrorMsg       string            `json:"error_msg,omitempty"`
}

// Completed is true when the environment itself ended the episode.
func (r *EpisodeResult) Completed() bool {
	return r.Reason == ReasonDone
}

// EpisodeRecord is the per-episode JSON file written to the records directory.
type EpisodeRecord struct {
	Result   EpisodeResult  `json:"result"`
	Priming  string         `json:"priming,omitempty"`
	Initial  TurnState      `json:"initial"`
	Turns    []TurnRecord   `json:"turns"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
