package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haivivi/mixrec/cmd/mixrec/internal/config"
	"github.com/haivivi/mixrec/pkg/cli"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := configFile()
		if err != nil {
			return err
		}
		printf(cmd, "%s\n", p)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with credentials masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if structured() {
			return output(cmd, cfg.Redacted())
		}
		b, err := cfg.Redacted().Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := configFile()
		if err != nil {
			return err
		}
		if _, err := os.Stat(p); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", p)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		b, err := config.Default().Marshal()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, b, 0o600); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "wrote %s", p)
		return nil
	},
}

// configFile returns --config or the default config file path.
func configFile() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	p, err := appPaths()
	if err != nil {
		return "", err
	}
	return p.ConfigFile(), nil
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configPathCmd, configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
