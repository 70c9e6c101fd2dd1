package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spboyer/textplay/internal/completion"
	"github.com/spboyer/textplay/internal/environment"
	"github.com/spboyer/textplay/internal/logging"
	"github.com/spboyer/textplay/internal/metrics"
	"github.com/spboyer/textplay/internal/models"
	"github.com/spboyer/textplay/internal/orchestration"
	"github.com/spboyer/textplay/internal/policy"
	"github.com/spboyer/textplay/internal/projectconfig"
	"github.com/spboyer/textplay/internal/session"
	"github.com/spboyer/textplay/internal/spinner"
	"github.com/spboyer/textplay/internal/tokens"
	"github.com/spboyer/textplay/internal/transcript"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// startSpinner is a test hook for replacing the spinner in tests
var startSpinner = spinner.Start

// runFlags mirror the project config; a flag only overrides the config when
// it was set explicitly.
type runFlags struct {
	configPath  string
	policy      string
	action      string
	strategy    string
	contextKind string
	engine      string
	model       string
	script      string
	mcpCommand  []string
	mcpURL      string
	maxTurns    int
	episodes    int
	workers     int
	seed        int64
	transcript  string
	recordsDir  string
	compress    bool
	sessionLog  string
	metricsAddr string
	verbose     bool
}

func newRunCommand() *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play one or more episodes",
		Long: `Play a text adventure with the selected decision policy.

Settings come from .textplay.yaml (searched upward from the current directory,
or given with --config); flags override them. Each turn prints the chosen
action, the game's response and the score; the run ends with
"Scored X out of Y". The full transcript is rewritten to --transcript after
every turn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommandE(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Path to a .textplay.yaml file")
	fl.StringVarP(&f.policy, "policy", "p", "", fmt.Sprintf("Decision policy: %s", strings.Join(policy.Names(), ", ")))
	fl.StringVar(&f.action, "action", "", "Action sent by the fixed policy")
	fl.StringVar(&f.strategy, "strategy", "", "Model prompting strategy: plain, thinking, mental-map")
	fl.StringVar(&f.contextKind, "context", "", "Transcript context: full-history, latest-only, window, token-budget")
	fl.StringVar(&f.engine, "engine", "", "Completion engine: copilot-sdk, genai, mock")
	fl.StringVar(&f.model, "model", "", "Model used by the model policy")
	fl.StringVar(&f.script, "script", "", "Scripted game file (selects the scripted environment)")
	fl.StringArrayVar(&f.mcpCommand, "mcp-command", nil, "Command (and args, repeated) launching an MCP game server")
	fl.StringVar(&f.mcpURL, "mcp-url", "", "URL of a streamable HTTP MCP game server")
	fl.IntVar(&f.maxTurns, "max-turns", 0, "Stop an episode after this many turns")
	fl.IntVar(&f.episodes, "episodes", 0, "Number of episodes to play")
	fl.IntVar(&f.workers, "workers", 0, "Episodes played concurrently (interactive policies always use 1)")
	fl.Int64Var(&f.seed, "seed", 0, "Seed for the random policy")
	fl.StringVar(&f.transcript, "transcript", "", "Transcript destination: file path, file://, redis://, azblob:// or blob URL")
	fl.StringVar(&f.recordsDir, "records-dir", "", "Directory for per-episode JSON records")
	fl.BoolVar(&f.compress, "compress", false, "zstd-compress episode records")
	fl.StringVar(&f.sessionLog, "session-log", "", "Write NDJSON session events to this file")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Show raw model output for each turn")

	return cmd
}

// loadRunConfig reads the project config and applies explicitly set flags.
func loadRunConfig(cmd *cobra.Command, f *runFlags) (*projectconfig.ProjectConfig, error) {
	var (
		cfg *projectconfig.ProjectConfig
		err error
	)
	if f.configPath != "" {
		cfg, err = projectconfig.LoadFile(f.configPath)
	} else {
		var wd string
		if wd, err = os.Getwd(); err == nil {
			cfg, err = projectconfig.Load(wd)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	changed := cmd.Flags().Changed
	if changed("policy") {
		cfg.Policy.Name = f.policy
	}
	if changed("action") {
		cfg.Policy.FixedAction = f.action
	}
	if changed("strategy") {
		cfg.Policy.Strategy = f.strategy
	}
	if changed("context") {
		cfg.Policy.Context = f.contextKind
	}
	if changed("seed") {
		cfg.Policy.Seed = &f.seed
	}
	if changed("engine") {
		cfg.Completion.Engine = f.engine
	}
	if changed("model") {
		cfg.Completion.Model = f.model
	}
	if changed("script") {
		abs, err := filepath.Abs(f.script)
		if err != nil {
			return nil, err
		}
		cfg.Environment = projectconfig.EnvironmentConfig{Kind: environment.KindScripted, Script: abs}
	}
	if changed("mcp-command") {
		cfg.Environment = projectconfig.EnvironmentConfig{Kind: environment.KindMCP, Command: f.mcpCommand}
	}
	if changed("mcp-url") {
		cfg.Environment = projectconfig.EnvironmentConfig{Kind: environment.KindMCP, URL: f.mcpURL}
	}
	if changed("max-turns") {
		cfg.Episode.MaxTurns = f.maxTurns
	}
	if changed("episodes") {
		cfg.Episode.Episodes = f.episodes
	}
	if changed("workers") {
		cfg.Episode.Workers = f.workers
	}
	if changed("transcript") {
		cfg.Output.Transcript = f.transcript
	}
	if changed("records-dir") {
		cfg.Output.RecordsDir = f.recordsDir
	}
	if changed("compress") {
		cfg.Output.Compress = &f.compress
	}
	if changed("session-log") {
		cfg.Output.SessionLog = f.sessionLog
	}
	if changed("metrics-addr") {
		cfg.Output.MetricsAddr = f.metricsAddr
	}
	if changed("verbose") {
		cfg.Output.Verbose = &f.verbose
	}
	return cfg, nil
}

func runCommandE(cmd *cobra.Command, f *runFlags) error {
	cfg, err := loadRunConfig(cmd, f)
	if err != nil {
		return err
	}

	// Invalid policy names fail before any episode starts.
	if !slices.Contains(policy.Names(), cfg.Policy.Name) {
		return fmt.Errorf("%w %q (available: %s)", policy.ErrUnknownPolicy, cfg.Policy.Name, strings.Join(policy.Names(), ", "))
	}
	if cfg.Episode.Episodes < 1 {
		return fmt.Errorf("episodes must be at least 1, got %d", cfg.Episode.Episodes)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The config's log file applies only when --log-file was not given.
	if cfg.Output.LogFile != "" && !cmd.Flags().Changed("log-file") {
		level := slog.LevelInfo
		if slog.Default().Enabled(ctx, slog.LevelDebug) {
			level = slog.LevelDebug
		}
		logger, closeLog, err := logging.New(logging.Options{
			Level:    level,
			Writer:   cmd.ErrOrStderr(),
			JSONPath: cfg.ResolvePath(cfg.Output.LogFile),
		})
		if err != nil {
			return err
		}
		defer closeLog() //nolint:errcheck
		slog.SetDefault(logger)
	}

	r := &episodeRunner{
		cfg: cfg,
		in:  cmd.InOrStdin(),
		out: cmd.OutOrStdout(),
		err: cmd.ErrOrStderr(),
	}
	defer r.close()

	if err := r.setup(ctx); err != nil {
		return err
	}

	// Build the first policy up front so option errors are configuration
	// errors, not episode failures.
	first, err := r.newPolicy(0)
	if err != nil {
		return err
	}

	if cfg.Episode.Episodes == 1 {
		return r.runSingle(ctx, first)
	}
	return r.runBatch(ctx, first)
}

// episodeRunner holds what all episodes of one run share.
type episodeRunner struct {
	cfg *projectconfig.ProjectConfig
	in  io.Reader
	out io.Writer
	err io.Writer

	completer  completion.Completer
	sessionLog session.Logger
	metrics    *metrics.Recorder
	metricsSrv *http.Server

	// outMu serializes batch output from concurrent episodes
	outMu sync.Mutex
}

func (r *episodeRunner) setup(ctx context.Context) error {
	cfg := r.cfg

	if cfg.Policy.Name == policy.NameModel {
		c, err := completion.New(ctx, completion.Config{
			Engine:  cfg.Completion.Engine,
			Model:   cfg.Completion.Model,
			APIKey:  os.Getenv(cfg.Completion.APIKeyEnv),
			Timeout: time.Duration(cfg.Completion.Timeout) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("creating completion engine: %w", err)
		}
		r.completer = c
	}

	l, err := session.Open(cfg.ResolvePath(cfg.Output.SessionLog))
	if err != nil {
		return err
	}
	r.sessionLog = l

	if cfg.Output.MetricsAddr != "" {
		r.metrics = metrics.New()
		ln, err := net.Listen("tcp", cfg.Output.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", r.metrics.Handler())
		r.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := r.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("metrics server stopped", "error", err)
			}
		}()
		slog.Info("serving metrics", "addr", ln.Addr().String())
	}
	return nil
}

func (r *episodeRunner) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil {
			slog.Warn("failed to stop metrics server", "error", err)
		}
	}
	if r.sessionLog != nil {
		if err := r.sessionLog.Close(); err != nil {
			slog.Warn("failed to close session log", "error", err)
		}
	}
	if r.completer != nil {
		if err := r.completer.Shutdown(ctx); err != nil {
			slog.Warn("failed to shutdown completion engine", "error", err)
		}
	}
}

// policyOptions merges the typed policy settings into the free-form
// options map; entries already in the map win.
func (r *episodeRunner) policyOptions(index int) policy.Options {
	pc := r.cfg.Policy
	opts := policy.Options{}
	maps.Copy(opts, pc.Options)

	set := func(key string, value any) {
		if _, ok := opts[key]; !ok {
			opts[key] = value
		}
	}
	switch pc.Name {
	case policy.NameFixed:
		set("action", pc.FixedAction)
	case policy.NameRandom:
		if pc.Seed != nil {
			set("seed", *pc.Seed+int64(index))
		}
	case policy.NameModel:
		set("strategy", pc.Strategy)
		if pc.Context != "" {
			set("context", pc.Context)
		}
		set("window_size", pc.WindowSize)
		set("token_budget", pc.TokenBudget)
		set("model", r.cfg.Completion.Model)
		set("timeout", time.Duration(r.cfg.Completion.Timeout)*time.Second)
	}
	return opts
}

func (r *episodeRunner) newPolicy(index int) (policy.Policy, error) {
	deps := policy.Deps{
		Completer: r.completer,
		In:        r.in,
		Out:       r.out,
		Counter:   tokens.NewEstimatingCounter(),
	}
	p, err := policy.New(r.cfg.Policy.Name, deps, r.policyOptions(index))
	if err != nil {
		return nil, fmt.Errorf("creating %s policy: %w", r.cfg.Policy.Name, err)
	}
	return p, nil
}

func (r *episodeRunner) openEnvironment(ctx context.Context) (environment.Environment, error) {
	ec := r.cfg.Environment
	script := ec.Script
	if script != "" {
		script = r.cfg.ResolvePath(script)
	}
	return environment.Open(ctx, environment.Config{
		Kind:    ec.Kind,
		Script:  script,
		Command: ec.Command,
		URL:     ec.URL,
	})
}

// newOrchestrator wires one episode. p may be nil, in which case a fresh
// policy is built.
func (r *episodeRunner) newOrchestrator(ctx context.Context, index int, p policy.Policy) (*orchestration.Orchestrator, error) {
	if p == nil {
		var err error
		if p, err = r.newPolicy(index); err != nil {
			return nil, err
		}
	}
	env, err := r.openEnvironment(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening environment: %w", err)
	}

	opts := []orchestration.Option{
		orchestration.WithMaxTurns(r.cfg.Episode.MaxTurns),
		orchestration.WithMetrics(r.metrics),
	}
	if r.sessionLog != nil {
		opts = append(opts, orchestration.WithSessionLog(r.sessionLog))
	}
	if r.cfg.Output.RecordsDir != "" {
		compress := r.cfg.Output.Compress != nil && *r.cfg.Output.Compress
		opts = append(opts, orchestration.WithRecords(r.cfg.ResolvePath(r.cfg.Output.RecordsDir), compress))
	}
	if dest := r.cfg.Output.Transcript; dest != "" {
		sink, err := transcript.OpenSink(ctx, r.transcriptDest(dest, index))
		if err != nil {
			_ = env.Close() //nolint:errcheck
			return nil, fmt.Errorf("opening transcript sink: %w", err)
		}
		opts = append(opts, orchestration.WithSink(sink))
	}

	return orchestration.New(env, p, opts...), nil
}

// transcriptDest gives each episode of a batch its own local file. Remote
// destinations are shared and hold the most recent snapshot.
func (r *episodeRunner) transcriptDest(dest string, index int) string {
	if strings.Contains(dest, "://") {
		return dest
	}
	dest = r.cfg.ResolvePath(dest)
	if r.cfg.Episode.Episodes == 1 {
		return dest
	}
	ext := filepath.Ext(dest)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(dest, ext), index+1, ext)
}

func (r *episodeRunner) runSingle(ctx context.Context, p policy.Policy) error {
	o, err := r.newOrchestrator(ctx, 0, p)
	if err != nil {
		return err
	}
	defer o.Close() //nolint:errcheck

	verbose := r.cfg.Output.Verbose != nil && *r.cfg.Output.Verbose
	rep := &turnReporter{w: r.out, verbose: verbose}
	if i, ok := p.(policy.Interactive); ok && i.Interactive() {
		rep.quiet = true
	}
	if p.Name() == policy.NameModel && isTerminal(r.err) {
		rep.wait = func(message string) func() { return startSpinner(r.err, message) }
	}
	o.OnProgress(rep.listen)

	res, err := o.Run(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrOperatorInterrupt):
		return err
	case res != nil:
		return &EpisodeFailureError{Message: fmt.Sprintf("episode ended: %v", err), Err: err}
	default:
		return err
	}
}

// runBatch plays the configured number of episodes. An interactive policy
// owns the operator's input stream, so one instance plays every episode in
// turn; other policies get a fresh instance per episode.
func (r *episodeRunner) runBatch(ctx context.Context, first policy.Policy) error {
	n := r.cfg.Episode.Episodes
	workers := orchestration.EffectiveWorkers(first, r.cfg.Episode.Workers)
	fmt.Fprintf(r.out, "Playing %d episodes with %s (%d workers)\n", n, r.cfg.Policy.Name, workers) //nolint:errcheck

	var shared policy.Policy
	if i, ok := first.(policy.Interactive); ok && i.Interactive() {
		shared = first
	}

	factory := func(ctx context.Context, index int) (*orchestration.Orchestrator, error) {
		o, err := r.newOrchestrator(ctx, index, shared)
		if err != nil {
			return nil, err
		}
		o.OnProgress(func(e orchestration.ProgressEvent) {
			if e.EventType == orchestration.EventEpisodeComplete {
				r.outMu.Lock()
				defer r.outMu.Unlock()
				printEpisodeLine(r.out, index, e.Result, e.Err)
			}
		})
		return o, nil
	}

	out, err := orchestration.RunEpisodes(ctx, n, workers, factory)
	if out != nil {
		printBatchSummary(r.out, out.Summary)
	}
	if err != nil {
		return err
	}

	var failed []error
	for _, e := range out.Errors {
		if e != nil {
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 {
		return &EpisodeFailureError{
			Message: fmt.Sprintf("%d of %d episodes ended on a fatal error", len(failed), n),
			Err:     errors.Join(failed...),
		}
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
