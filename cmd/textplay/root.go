package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spboyer/textplay/internal/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

// newRootCommand builds the command tree. The returned func closes the file
// opened for --log-file, if any.
func newRootCommand() (*cobra.Command, func() error) {
	cmd := &cobra.Command{
		Use:   "textplay",
		Short: "textplay - play text adventures with pluggable decision policies",
		Long: `textplay runs text-adventure episodes.

Each turn the game's observation and legal actions are shown to a decision
policy (fixed, human, menu, random or a language model); its answer is checked
against the legal actions and sent back to the game. The full transcript is
kept and exported after every turn.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	logFile := cmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this file")

	var closeLog func() error
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if *debugLogging {
			level = slog.LevelDebug
		}
		logger, closeFn, err := logging.New(logging.Options{
			Level:    level,
			Writer:   cmd.ErrOrStderr(),
			JSONPath: *logFile,
		})
		if err != nil {
			return err
		}
		closeLog = closeFn
		slog.SetDefault(logger)
		return nil
	}

	// Add subcommands
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newPoliciesCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newSessionCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd, func() error {
		if closeLog == nil {
			return nil
		}
		return closeLog()
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the textplay version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "textplay %s\n", version)
		},
	}
}

func execute() error {
	rootCmd, closeLog := newRootCommand()
	return executeRoot(context.Background(), rootCmd, closeLog)
}

// executeRoot runs cmd and closes the log file afterwards. Cobra skips
// PersistentPostRunE when a command fails, so this cannot live in a hook.
func executeRoot(ctx context.Context, cmd *cobra.Command, closeLog func() error) error {
	err := cmd.ExecuteContext(ctx)
	if cerr := closeLog(); cerr != nil && err == nil {
		err = fmt.Errorf("closing log file: %w", cerr)
	}
	return err
}
