package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/mixrec/cmd/mixrec/internal/config"
	"github.com/haivivi/mixrec/pkg/cli"
)

const appName = "mixrec"

var (
	verbose      bool
	configPath   string
	formatOutput string
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Record microphone and system audio into one mixed track",
	Long: `mixrec - record several audio sources into one mixed WAV file, with
optional live transcription and speaker attribution.

Configuration is read from the OS config directory unless --config is set:
  macOS:   ~/Library/Application Support/mixrec/config.yaml
  Linux:   ~/.config/mixrec/config.yaml
  Windows: %AppData%/mixrec/config.yaml
Set MIXREC_HOME to move that directory.

Examples:
  # Record until Ctrl-C with the default microphone and monitor
  mixrec record -o meeting.wav

  # Record 30 minutes and transcribe with speaker labels
  mixrec record -o standup.wav -d 30m --transcribe --speaker-labels

  # Show past sessions
  mixrec sessions list`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default <config dir>/mixrec/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&formatOutput, "format", "", "structured output format: yaml or json")
}

func appPaths() (*cli.Paths, error) {
	return cli.NewPaths(appName)
}

// loadConfig reads --config, or the default config file when present.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath, false)
	}
	p, err := appPaths()
	if err != nil {
		return nil, err
	}
	return config.Load(p.ConfigFile(), true)
}

// structured reports whether --format asked for machine-readable output.
func structured() bool {
	return formatOutput != ""
}

func output(cmd *cobra.Command, v any) error {
	f, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return err
	}
	return cli.Output(v, cli.OutputOptions{Format: f, Writer: cmd.OutOrStdout()})
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
