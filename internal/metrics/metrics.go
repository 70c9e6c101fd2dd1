// Package metrics exposes episode counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects per-turn and per-episode metrics. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	turns          *prometheus.CounterVec
	invalidActions *prometheus.CounterVec
	episodes       *prometheus.CounterVec
	decisionTime   *prometheus.HistogramVec
	score          *prometheus.GaugeVec
	tokens         *prometheus.CounterVec
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textplay_turns_total",
				Help: "Total number of completed turns",
			},
			[]string{"policy"},
		),
		invalidActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textplay_invalid_actions_total",
				Help: "Candidate actions replaced by a legal fallback",
			},
			[]string{"policy"},
		),
		episodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textplay_episodes_total",
				Help: "Finished episodes by termination reason",
			},
			[]string{"policy", "reason"},
		),
		decisionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textplay_decision_duration_seconds",
				Help:    "Time the policy took to choose an action",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"policy"},
		),
		score: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "textplay_episode_score",
				Help: "Score at the end of the most recent episode",
			},
			[]string{"policy"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textplay_tokens_total",
				Help: "Completion tokens by direction",
			},
			[]string{"policy", "direction"},
		),
	}
	r.registry.MustRegister(r.turns, r.invalidActions, r.episodes, r.decisionTime, r.score, r.tokens)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry on /metrics. A nil Recorder serves an empty
// exposition.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveTurn records one completed turn.
func (r *Recorder) ObserveTurn(policy string, decision time.Duration, invalid bool) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(policy).Inc()
	r.decisionTime.WithLabelValues(policy).Observe(decision.Seconds())
	if invalid {
		r.invalidActions.WithLabelValues(policy).Inc()
	}
}

// ObserveTokens adds completion token usage.
func (r *Recorder) ObserveTokens(policy string, input, output int) {
	if r == nil {
		return
	}
	if input > 0 {
		r.tokens.WithLabelValues(policy, "input").Add(float64(input))
	}
	if output > 0 {
		r.tokens.WithLabelValues(policy, "output").Add(float64(output))
	}
}

// ObserveEpisode records the end of an episode.
func (r *Recorder) ObserveEpisode(policy, reason string, score int) {
	if r == nil {
		return
	}
	r.episodes.WithLabelValues(policy, reason).Inc()
	r.score.WithLabelValues(policy).Set(float64(score))
}
