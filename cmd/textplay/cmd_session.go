package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spboyer/textplay/internal/session"
	"github.com/spf13/cobra"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect NDJSON session logs",
		Long: `Inspect the NDJSON event logs written when --session-log is set.

A log records each episode's start, every turn, substituted invalid
actions, errors and the final score. Episodes of a batch share one file.`,
	}
	cmd.AddCommand(newSessionListCommand(), newSessionViewCommand())
	return cmd
}

func newSessionListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List session logs in a directory, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			files, err := session.ListSessions(root)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}

			w := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(w, "No session logs found.")
				return nil
			}

			nameWidth := len("File")
			for _, f := range files {
				nameWidth = max(nameWidth, len(f.Name))
			}
			header := fmt.Sprintf("%s  %8s  %8s  %s", padRight("File", nameWidth), "Episodes", "Events", "Modified")
			fmt.Fprintln(w, header)
			fmt.Fprintln(w, strings.Repeat("─", len(header)))
			for _, f := range files {
				fmt.Fprintf(w, "%s  %8d  %8d  %s\n",
					padRight(f.Name, nameWidth), f.Episodes, f.Events, f.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to search for session logs")
	return cmd
}

func newSessionViewCommand() *cobra.Command {
	var episode string

	cmd := &cobra.Command{
		Use:   "view <session-file>",
		Short: "Render a session log as a timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := session.ReadEvents(args[0])
			if err != nil {
				return fmt.Errorf("reading session: %w", err)
			}
			if episode != "" {
				events = session.FilterEpisode(events, episode)
				if len(events) == 0 {
					return fmt.Errorf("no events for episode %q in %s", episode, args[0])
				}
			}
			session.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().StringVarP(&episode, "episode", "e", "", "Only show events of the episode whose id starts with this prefix")
	return cmd
}
