// Package cli holds the terminal plumbing shared by mixrec commands:
// structured output (YAML, JSON), slog setup with optional log file
// rotation, per-user directories, and lipgloss rendering of summaries and
// level meters.
//
//	logger, closer, err := cli.NewLogger(cli.LogOptions{Level: "debug"}, os.Stderr)
//	defer closer.Close()
//
//	cli.Output(report, cli.OutputOptions{Format: cli.FormatJSON})
package cli
