package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
)

// cli holds state shared by every subcommand. It is filled in by the root
// command's PersistentPreRunE.
type cli struct {
	configPath string
	logLevel   string

	stderr io.Writer
	now    func() time.Time

	cfg     config.Config
	logger  log.Logger
	logFile *os.File
}

func run(args []string) int {
	c := &cli{stderr: os.Stderr, now: time.Now}
	defer c.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := c.newRootCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if c.logger == nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return 1
		}
		c.logger.Error("command failed", err, log.ErrorCodeKey, errorCode(err))
		return 1
	}
	return 0
}

func (c *cli) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cropyield",
		Short:         "Crop yield training pipeline and batch predictor",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	cmd.SetErr(c.stderr)

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		c.newTrainCommand(),
		c.newPredictCommand(),
		c.newLoadDataCommand(),
	)
	return cmd
}

// setup loads the configuration and opens the logger. The log file, when
// configured, receives the same JSON lines as stderr.
func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.NewConfigError(c.configPath, 0, err)
	}

	writers := []io.Writer{c.stderr}
	if path := cfg.LogFile(c.now()); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrapf(err, "create log directory %s", filepath.Dir(path))
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "open log file %s", path)
		}
		c.logFile = f
		writers = append(writers, f)
	}

	c.cfg = cfg
	c.logger = log.NewZerologProvider(level, writers...).GetLoggerWithName("cropyield")
	return nil
}

func (c *cli) close() {
	if c.logFile != nil {
		_ = c.logFile.Sync()
		_ = c.logFile.Close()
		c.logFile = nil
	}
}

// errorCode maps an error to the value logged under log.ErrorCodeKey.
func errorCode(err error) string {
	var stageErr *errors.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	var cfgErr *errors.ConfigError
	if errors.As(err, &cfgErr) {
		return "CONFIG"
	}
	return "UNKNOWN"
}
