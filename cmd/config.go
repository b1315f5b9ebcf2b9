package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dwander/schedule-parser-v2/config"
	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit the sched configuration",
		Long: `Show or edit the sched configuration.

Settings are read from ~/.sched/config.yaml (or $SCHED_CONFIG_DIR/config.yaml)
and then from SCHED_* environment variables, which take precedence.`,
	}

	cmd.AddCommand(newConfigShowCommand(deps))
	cmd.AddCommand(newConfigInitCommand(deps))
	cmd.AddCommand(newConfigSetCommand(deps))

	return cmd
}

func newConfigShowCommand(deps *CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.config()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if ok, err := WriteStructured(w, cfg.OutputFormat, cfg); ok {
				return err
			}

			if path, err := deps.configPath(); err == nil {
				fmt.Fprintf(w, "# %s\n", path)
			}
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func newConfigInitCommand(deps *CommandDeps) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := deps.configPath()
			if err != nil {
				return err
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s already exists (use --force to overwrite)", scherrors.ErrValidation, path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("checking %s: %w", path, err)
			}

			if err := config.SaveConfigTo(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func newConfigSetCommand(deps *CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one configuration value",
		Long: `Set one configuration value in the config file.

Keys:
  ` + strings.Join(config.Keys(), "\n  ") + `

Examples:
  sched config set engine hybrid
  sched config set manager.default_name 김매니저
  sched config set cache.ttl 24h`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := deps.configPath()
			if err != nil {
				return err
			}

			// Edit the file's own view so SCHED_* overrides are not persisted.
			cfg, err := config.ReadConfigFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveConfigTo(cfg, path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", strings.ToLower(args[0]), args[1])
			return nil
		},
	}
}
