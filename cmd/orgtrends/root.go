package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"yashubustudio/orgtrends/internal/config"
	"yashubustudio/orgtrends/internal/logging"
	"yashubustudio/orgtrends/internal/observability"
)

// skipSetup marks commands that run without loading settings.
const skipSetup = "skip-setup"

// cli carries state shared by every subcommand.
type cli struct {
	stdout, stderr io.Writer

	configFile string
	envFile    string
	logLevel   string

	settings   config.Settings
	configUsed string
	logger     *slog.Logger
	closeLog   func() error
	shutdown   observability.ShutdownFunc
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr, logger: logging.Discard()}

	root := &cobra.Command{
		Use:           "orgtrends",
		Short:         "Rank the organizations most mentioned in forum post titles",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipSetup] != "" {
				return nil
			}
			return c.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return c.teardown(cmd.Context())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configFile, "config", "c", "", "Settings file (default ./"+config.DefaultFileName+")")
	pf.StringVar(&c.envFile, "env-file", "", "Dotenv file with credentials (default ./.env)")
	pf.StringVar(&c.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCommand(c),
		newClassifyCommand(c),
		newServeCommand(c),
		newConfigCommand(c),
	)
	return root
}

func (c *cli) setup(ctx context.Context) error {
	s, used, err := config.Load(config.LoadOptions{ConfigFile: c.configFile, EnvFile: c.envFile})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.logLevel != "" {
		s.Logging.Level = c.logLevel
	}
	logger, closeLog, err := logging.New(s.Logging, c.stderr)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	c.settings, c.configUsed, c.logger, c.closeLog = s, used, logger, closeLog
	if used != "" {
		logger.Debug("settings loaded", "path", used)
	}

	shutdown, err := observability.Init(ctx, s.Tracing, version, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	c.shutdown = shutdown
	return nil
}

func (c *cli) teardown(ctx context.Context) error {
	var errs []error
	if c.shutdown != nil {
		// The command context may already be cancelled by a signal.
		if err := c.shutdown(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		c.shutdown = nil
	}
	if c.closeLog != nil {
		if err := c.closeLog(); err != nil {
			errs = append(errs, fmt.Errorf("close log: %w", err))
		}
		c.closeLog = nil
	}
	return errors.Join(errs...)
}
