// Package orchestration drives episodes: it mediates between an environment
// and a decision policy, one turn at a time.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spboyer/textplay/internal/environment"
	"github.com/spboyer/textplay/internal/metrics"
	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/policy"
	"github.com/spboyer/textplay/internal/session"
	"github.com/spboyer/textplay/internal/transcript"
	"github.com/spboyer/textplay/internal/validation"
)

// ErrAlreadyRun is returned when Run is called on an orchestrator that has
// already started an episode.
var ErrAlreadyRun = errors.New("orchestrator: episode already run")

// State is the orchestrator lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Orchestrator runs exactly one episode. It owns the episode's transcript
// and legal-action vocabulary for the whole run.
type Orchestrator struct {
	env       environment.Environment
	policy    policy.Policy
	validator *validation.ActionValidator

	episodeID  string
	maxTurns   int
	sink       transcript.Sink
	sessionLog session.Logger
	metrics    *metrics.Recorder
	recordsDir string
	compress   bool
	logger     *slog.Logger

	state      atomic.Int32
	transcript *transcript.Transcript
	initial    models.TurnState

	// Progress tracking
	progressMu sync.Mutex
	listeners  []ProgressListener
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxTurns stops the episode after n turns. Zero means no limit.
func WithMaxTurns(n int) Option {
	return func(o *Orchestrator) {
		o.maxTurns = n
	}
}

// WithSink exports the full transcript to sink after every turn.
func WithSink(sink transcript.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithSessionLog writes NDJSON session events.
func WithSessionLog(l session.Logger) Option {
	return func(o *Orchestrator) {
		o.sessionLog = l
	}
}

// WithMetrics records turn and episode metrics.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = r
	}
}

// WithValidator replaces the default action validator.
func WithValidator(v *validation.ActionValidator) Option {
	return func(o *Orchestrator) {
		o.validator = v
	}
}

// WithRecords writes a JSON episode record into dir when the episode ends.
func WithRecords(dir string, compress bool) Option {
	return func(o *Orchestrator) {
		o.recordsDir = dir
		o.compress = compress
	}
}

// WithEpisodeID overrides the generated episode id.
func WithEpisodeID(id string) Option {
	return func(o *Orchestrator) {
		o.episodeID = id
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an idle orchestrator for one episode.
func New(env environment.Environment, p policy.Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		env:        env,
		policy:     p,
		sessionLog: session.NopLogger{},
		listeners:  []ProgressListener{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.validator == nil {
		o.validator = validation.NewActionValidator(nil)
	}
	if o.episodeID == "" {
		o.episodeID = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("episode_id", o.episodeID, "policy", p.Name())

	var priming string
	if pr, ok := p.(policy.Primer); ok {
		priming = pr.Priming()
	}
	o.transcript = transcript.New(priming)
	return o
}

// EpisodeID identifies this orchestrator's episode.
func (o *Orchestrator) EpisodeID() string { return o.episodeID }

// State reports the lifecycle position.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Transcript is the episode's transcript. It must not be modified while
// Run is in progress.
func (o *Orchestrator) Transcript() *transcript.Transcript { return o.transcript }

// Close releases the environment.
func (o *Orchestrator) Close() error {
	return o.env.Close()
}

// Run plays the episode until the environment reports done, the turn limit
// is reached, a fatal error occurs or ctx is cancelled. On fatal errors and
// interrupts the partial result is returned together with the error.
func (o *Orchestrator) Run(ctx context.Context) (*models.EpisodeResult, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyRun
	}
	defer o.state.Store(int32(StateTerminated))

	start := time.Now()
	res := &models.EpisodeResult{
		EpisodeID: o.episodeID,
		Policy:    o.policy.Name(),
		StartedAt: start.UTC(),
	}

	state, err := o.reset(ctx, res)
	if err != nil {
		return o.finish(ctx, res, start, "", err)
	}

	o.logger.Info("episode started", "max_score", res.MaxScore, "legal_actions", len(state.LegalActions))
	session.LogBestEffort(o.sessionLog, session.NewEvent(session.EventEpisodeStart,
		session.EpisodeStartData(o.episodeID, res.Policy, state.Observation, res.MaxScore)))
	o.notifyProgress(ProgressEvent{EventType: EventEpisodeStart, State: state, MaxScore: res.MaxScore})

	for turn := 1; ; turn++ {
		if o.maxTurns > 0 && turn > o.maxTurns {
			return o.finish(ctx, res, start, models.ReasonMaxTurns, nil)
		}
		if ctx.Err() != nil {
			return o.finish(ctx, res, start, "", interrupted(ctx))
		}

		next, done, err := o.playTurn(ctx, turn, state, res)
		if err != nil {
			return o.finish(ctx, res, start, "", err)
		}
		state = next
		if done {
			return o.finish(ctx, res, start, models.ReasonDone, nil)
		}
	}
}

func (o *Orchestrator) reset(ctx context.Context, res *models.EpisodeResult) (models.TurnState, error) {
	obs, info, err := o.env.Reset(ctx)
	if err != nil {
		return models.TurnState{}, o.envError(ctx, "reset", err)
	}
	maxScore, err := o.env.MaxScore(ctx)
	if err != nil {
		return models.TurnState{}, o.envError(ctx, "max score", err)
	}
	legal, err := o.env.LegalActions(ctx)
	if err != nil {
		return models.TurnState{}, o.envError(ctx, "legal actions", err)
	}

	res.MaxScore = maxScore
	res.Score = info.Score
	res.Moves = info.Moves
	o.initial = models.TurnState{
		Observation:  obs,
		Score:        info.Score,
		LegalActions: legal,
	}
	return o.initial, nil
}

// playTurn runs one decision and one environment step. It returns the state
// for the next turn and whether the environment ended the episode.
func (o *Orchestrator) playTurn(ctx context.Context, turn int, state models.TurnState, res *models.EpisodeResult) (models.TurnState, bool, error) {
	if err := validation.CheckVocabulary(state.LegalActions); err != nil {
		return state, false, fmt.Errorf("turn %d: %w", turn, err)
	}

	o.notifyProgress(ProgressEvent{EventType: EventTurnStart, Turn: turn, State: state})

	decideStart := time.Now()
	decision, err := o.policy.ChooseAction(ctx, state, o.transcript)
	decideTime := time.Since(decideStart)
	res.Usage = res.Usage.Add(decision.Usage)
	o.metrics.ObserveTokens(res.Policy, decision.Usage.InputTokens, decision.Usage.OutputTokens)
	if err != nil {
		return state, false, o.policyError(ctx, turn, err)
	}

	action, err := o.validator.Validate(decision.Action, state.LegalActions)
	invalid := false
	if err != nil {
		var iae *models.InvalidActionError
		if !errors.As(err, &iae) {
			return state, false, fmt.Errorf("turn %d: %w", turn, err)
		}
		invalid = true
		res.InvalidActions++
		o.logger.Warn("invalid action, substituting", "turn", turn, "candidate", iae.Candidate, "substitute", iae.Substitute)
		session.LogBestEffort(o.sessionLog, session.NewEvent(session.EventInvalidAction,
			session.InvalidActionData(o.episodeID, turn, iae.Candidate, iae.Substitute)))
		o.notifyProgress(ProgressEvent{
			EventType: EventInvalidAction,
			Turn:      turn,
			Candidate: iae.Candidate,
			Action:    iae.Substitute,
			RawOutput: decision.RawOutput,
			State:     state,
		})
	}

	step, err := o.env.Step(ctx, action)
	if err != nil {
		return state, false, o.envError(ctx, fmt.Sprintf("turn %d: step %q", turn, action), err)
	}

	next := models.TurnState{
		Observation: step.Observation,
		Reward:      step.Reward,
		Score:       step.Info.Score,
	}
	if !step.Done {
		legal, err := o.env.LegalActions(ctx)
		if err != nil {
			return state, false, o.envError(ctx, fmt.Sprintf("turn %d: legal actions", turn), err)
		}
		next.LegalActions = legal
	}

	if err := o.transcript.Append(action, next, decision.RawOutput); err != nil {
		return state, false, fmt.Errorf("turn %d: %w: %w", turn, models.ErrEnvironmentProtocol, err)
	}
	res.Steps = turn
	res.Score = step.Info.Score
	res.Moves = step.Info.Moves

	o.export(ctx)
	o.metrics.ObserveTurn(res.Policy, decideTime, invalid)
	o.logger.Debug("turn complete", "turn", turn, "action", action, "reward", step.Reward, "score", step.Info.Score, "done", step.Done)
	session.LogBestEffort(o.sessionLog, session.NewEvent(session.EventTurnComplete,
		session.TurnCompleteData(o.episodeID, turn, action, step.Reward, step.Info.Score, step.Done)))
	o.notifyProgress(ProgressEvent{
		EventType: EventTurnComplete,
		Turn:      turn,
		Action:    action,
		RawOutput: decision.RawOutput,
		State:     next,
		Moves:     step.Info.Moves,
	})

	return next, step.Done, nil
}

// export writes the full transcript to the sink. Failures are reported and
// never end the episode.
func (o *Orchestrator) export(ctx context.Context) {
	if o.sink == nil {
		return
	}
	if err := o.transcript.ExportSnapshot(ctx, o.sink); err != nil {
		o.logger.Warn("transcript export failed", "error", err)
		o.notifyProgress(ProgressEvent{EventType: EventExportFailed, Turn: o.transcript.Len(), Err: err})
	}
}

func (o *Orchestrator) finish(ctx context.Context, res *models.EpisodeResult, start time.Time, reason models.TerminationReason, err error) (*models.EpisodeResult, error) {
	if err != nil {
		reason = models.ReasonFor(err)
		res.ErrorMsg = err.Error()
	}
	res.Reason = reason
	res.DurationMs = time.Since(start).Milliseconds()

	// The sink may share the cancelled context, so the last export and
	// record must not depend on it.
	final := context.WithoutCancel(ctx)
	if reason == models.ReasonInterrupted {
		o.export(final)
	}

	switch {
	case err == nil:
		o.logger.Info("episode finished", "reason", reason, "score", res.Score, "max_score", res.MaxScore, "steps", res.Steps)
	case reason == models.ReasonInterrupted:
		o.logger.Info("episode interrupted", "score", res.Score, "steps", res.Steps)
	default:
		o.logger.Error("episode failed", "reason", reason, "error", err)
		session.LogBestEffort(o.sessionLog, session.NewEvent(session.EventError,
			session.ErrorData(err.Error(), map[string]any{"episode_id": o.episodeID})))
	}

	o.metrics.ObserveEpisode(res.Policy, string(reason), res.Score)
	session.LogBestEffort(o.sessionLog, session.NewEvent(session.EventEpisodeEnd,
		session.EpisodeEndData(o.episodeID, string(reason), res.Score, res.MaxScore, res.Steps, res.DurationMs)))

	if o.recordsDir != "" {
		rec := transcript.BuildRecord(o.transcript, o.initial, *res)
		path, werr := transcript.WriteRecord(o.recordsDir, rec, o.compress)
		if werr != nil {
			o.logger.Warn("failed to write episode record", "error", werr)
		} else {
			o.logger.Debug("episode record written", "path", path)
		}
	}

	o.notifyProgress(ProgressEvent{
		EventType: EventEpisodeComplete,
		Turn:      res.Steps,
		MaxScore:  res.MaxScore,
		Result:    res,
		Err:       err,
	})
	return res, err
}

// envError classifies an environment failure. A cancelled context wins over
// whatever the environment reported.
func (o *Orchestrator) envError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return interrupted(ctx)
	}
	if errors.Is(err, models.ErrEnvironmentProtocol) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrEnvironmentProtocol, err)
}

func (o *Orchestrator) policyError(ctx context.Context, turn int, err error) error {
	switch {
	case errors.Is(err, models.ErrOperatorInterrupt), errors.Is(err, models.ErrPolicyUnavailable):
		return fmt.Errorf("turn %d: %w", turn, err)
	case ctx.Err() != nil:
		return interrupted(ctx)
	default:
		return fmt.Errorf("turn %d: %w: %w", turn, models.ErrPolicyUnavailable, err)
	}
}

func interrupted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", models.ErrOperatorInterrupt, context.Cause(ctx))
}
