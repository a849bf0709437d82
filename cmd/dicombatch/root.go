package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mrsinham/dicombatch/internal/config"
	"github.com/mrsinham/dicombatch/internal/logging"
)

type commandContext struct {
	configFlag string
	logLevel   string
	logFormat  string
	logFile    string

	runID  string
	closer io.Closer
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{runID: uuid.NewString()}

	rootCmd := &cobra.Command{
		Use:           "dicombatch",
		Short:         "Sort DICOM trees and convert RT structure sets in bulk",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if ctx.closer != nil {
				_ = ctx.closer.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file (.yaml, .yml or .toml)")
	flags.StringVar(&ctx.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&ctx.logFormat, "log-format", "", "Log format: console, json, auto")
	flags.StringVar(&ctx.logFile, "log-file", "", "Also append JSON logs to this file")

	rootCmd.AddCommand(newSortCommand(ctx))
	rootCmd.AddCommand(newConvertCommand(ctx))
	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newSynthCommand())
	rootCmd.AddCommand(newWizardCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// loadConfig returns the defaults merged with the --config file and the
// global log flags.
func (c *commandContext) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if path := strings.TrimSpace(c.configFlag); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = c.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = c.logFile
	}
	return &cfg, nil
}

// logger builds the run logger on the command's error stream.
func (c *commandContext) logger(cmd *cobra.Command, cfg config.LogConfig) (*slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, closer, err := logging.New(logging.Options{
		Level:  cfg.Level,
		Format: cfg.Format,
		File:   cfg.File,
		Output: cmd.ErrOrStderr(),
		RunID:  c.runID,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	c.closer = closer
	return log.With("command", cmd.Name()), nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dicombatch %s\n", version)
		},
	}
}
