// Package main provides the sched CLI entry point.
// sched extracts wedding-shoot bookings from KakaoTalk chat transcripts.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwander/schedule-parser-v2/cmd"
	"github.com/dwander/schedule-parser-v2/config"
	"github.com/dwander/schedule-parser-v2/pkg/buildinfo"
	"github.com/dwander/schedule-parser-v2/pkg/logging"
)

// rootFlags holds the global flags.
type rootFlags struct {
	cfgFile      string
	outputFormat string
	debug        bool
	logJSON      bool
}

// newRootCommand builds the sched command tree around deps. PersistentPreRunE
// fills deps.Config, deps.Logger and deps.ConfigPath before any subcommand runs.
func newRootCommand(deps *cmd.CommandDeps) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "sched",
		Short: "sched - wedding-shoot bookings from KakaoTalk transcripts",
		Long: `sched extracts wedding-shoot bookings from KakaoTalk chat transcripts.

It reads PC and mobile chat exports as well as compact one-line schedules,
finds the booking blocks, identifies the manager who posted them, and prints
one record per shoot: date, time, venue, couple, contact, brand, album,
photographer, price and memo. Records missing required fields are kept and
flagged for review.

COMMON WORKFLOWS:
  Parse one chat:    sched parse KakaoTalk_20250915.txt
  Check a format:    sched detect chat.txt
  Look up a rate:    sched price --brand "K 세븐스" --album 30P --date 2025.10.18
  Parse a folder:    sched batch ./exports --output json
  Enable the LLM:    sched auth set-key  →  sched parse chat.txt --engine hybrid

Use --output json or --output yaml on any command for machine-readable output.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			return initDeps(c, deps, flags)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (default is ~/.sched/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.outputFormat, "output", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "write logs to stderr as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "parse", Title: "Parsing:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	parseCmd := cmd.NewParseCommand(deps)
	parseCmd.GroupID = "parse"
	rootCmd.AddCommand(parseCmd)

	detectCmd := cmd.NewDetectCommand(deps)
	detectCmd.GroupID = "parse"
	rootCmd.AddCommand(detectCmd)

	priceCmd := cmd.NewPriceCommand(deps)
	priceCmd.GroupID = "parse"
	rootCmd.AddCommand(priceCmd)

	batchCmd := cmd.NewBatchCommand(deps)
	batchCmd.GroupID = "parse"
	rootCmd.AddCommand(batchCmd)

	authCmd := cmd.NewAuthCommand(deps)
	authCmd.GroupID = "setup"
	rootCmd.AddCommand(authCmd)

	configCmd := cmd.NewConfigCommand(deps)
	configCmd.GroupID = "setup"
	rootCmd.AddCommand(configCmd)

	versionCmd := newVersionCommand()
	versionCmd.GroupID = "setup"
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

// initDeps loads the configuration, applies the global flags and builds the
// logger.
func initDeps(c *cobra.Command, deps *cmd.CommandDeps, flags *rootFlags) error {
	switch c.Name() {
	case "version", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return nil
	}

	path, err := config.ExpandPath(flags.cfgFile)
	if err == nil && path == "" {
		path, err = config.ConfigPath()
	}
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	deps.ConfigPath = path

	// config init and set must work while the file on disk is invalid.
	if c.Parent() != nil && c.Parent().Name() == "config" && c.Name() != "show" {
		deps.Logger = newLogger(c.ErrOrStderr(), flags.debug, flags.logJSON)
		return nil
	}

	cfg, err := config.LoadConfigFrom(deps.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// Override with command-line flags.
	if flags.outputFormat != "" {
		cfg.OutputFormat = config.OutputFormat(flags.outputFormat)
	}
	if flags.debug {
		cfg.Debug = true
	}
	if flags.logJSON {
		cfg.LogFormat = config.LogFormatJSON
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps.Config = cfg
	deps.Logger = newLogger(c.ErrOrStderr(), cfg.Debug, cfg.LogFormat == config.LogFormatJSON)
	deps.Logger.Debug("Configuration loaded",
		logging.F("path", deps.ConfigPath),
		logging.F("engine", cfg.Engine),
		logging.F("output", cfg.OutputFormat.String()))
	return nil
}

func newLogger(w io.Writer, debug, jsonFormat bool) logging.Logger {
	lc := logging.DefaultConfig()
	if debug {
		lc.Level = logging.LevelDebug
	}
	lc.JSONFormat = jsonFormat
	lc.Output = w
	return logging.NewLogger(lc)
}

// newVersionCommand prints version information. It runs without loading
// the configuration, so only the --output flag selects the format.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, commit hash, build time and Go version of sched.

Use --output json for machine-readable output.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			info := buildinfo.Get("sched")
			out := c.OutOrStdout()

			format, _ := c.Flags().GetString("output")
			if ok, err := cmd.WriteStructured(out, config.OutputFormat(format), info); ok {
				return err
			}

			fmt.Fprintf(out, "sched version %s\n", info.Version)
			fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
			fmt.Fprintf(out, "  go:         %s (%s)\n", info.GoVersion, info.Platform)
			return nil
		},
	}
}

func main() {
	// Cancel in-flight work (LLM calls, batch runs) on interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCommand(cmd.DefaultDeps()).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
