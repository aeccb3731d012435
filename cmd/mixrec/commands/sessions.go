package commands

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/mixrec/pkg/cli"
	"github.com/haivivi/mixrec/pkg/journal"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Inspect the journal of past recording sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournalReadOnly()
		if err != nil {
			return err
		}
		defer j.Close()

		entries, err := j.List(cmd.Context(), sessionsLimit)
		if err != nil {
			return err
		}
		if structured() {
			reports := make([]any, len(entries))
			for i := range entries {
				reports[i] = entries[i].Report
			}
			return output(cmd, reports)
		}
		if len(entries) == 0 {
			printf(cmd, "No sessions recorded.\n")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tDROPPED\tSTATUS\t")
		for _, e := range entries {
			r := e.Report
			status := "ok"
			if r.Err != "" {
				status = "failed"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t\n",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				cli.FormatDuration(r.Elapsed), r.Dropped(), status)
		}
		return tw.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the report, speaker timeline and files of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournalReadOnly()
		if err != nil {
			return err
		}
		defer j.Close()

		e, err := j.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return output(cmd, e)
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a session from the journal (files are kept)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournalReadOnly()
		if err != nil {
			return err
		}
		defer j.Close()

		if err := j.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "session %s deleted", args[0])
		return nil
	},
}

// openJournalReadOnly opens the configured journal for the sessions
// commands.
func openJournalReadOnly() (*journal.Journal, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dir := cfg.Journal.Dir
	if dir == "" {
		p, err := appPaths()
		if err != nil {
			return nil, err
		}
		dir = p.JournalDir()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return journal.Open(dir, journal.WithLogger(logger))
}

func init() {
	sessionsListCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "maximum number of sessions (0 = all)")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}
