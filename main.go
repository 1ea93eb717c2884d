// testlink keeps the links between PHP production code and its tests in sync.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/TestFlowLabs/testlink-sub002/internal/config"
	"github.com/TestFlowLabs/testlink-sub002/internal/engine"
	"github.com/TestFlowLabs/testlink-sub002/internal/logging"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var exit *exitError
		if !stderrors.As(err, &exit) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// exitError requests a non-zero exit for a failure the command already
// reported on its own output.
type exitError struct {
	reason string
}

func (e *exitError) Error() string { return e.reason }

func run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	path       string
	configFile string
	logLevel   string
	verbose    int
	quiet      bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "testlink",
		Short: "Keep links between PHP code and its tests in sync",
		Long: `testlink reads the links declared between production code and tests
(TestedBy attributes, LinksAndCovers/Links attributes, Pest linksAndCovers()/links()
chains and @see references) and reports, validates, or repairs them so both sides agree.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate("testlink {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.path, "path", "p", ".", "project root")
	pf.StringVar(&opts.configFile, "config", "", "config file (default: testlink.{yaml,json,toml} in the project root)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.CountVarP(&opts.verbose, "verbose", "v", "more logging (-v info, -vv debug)")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "no logging")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		newReportCmd(opts, stdout, stderr),
		newValidateCmd(opts, stdout, stderr),
		newSyncCmd(opts, stdout, stderr),
		newPairCmd(opts, stdout, stderr),
		newInitCmd(opts, stdout, stderr),
	)
	return cmd
}

// setup loads configuration and builds the logger and engine for a command.
func setup(opts *globalOptions, stderr io.Writer) (*engine.Engine, *slog.Logger, error) {
	cfg, err := config.Load(opts.path, opts.configFile)
	if err != nil {
		return nil, nil, err
	}

	configured := cfg.Logging.Level
	if opts.logLevel != "" {
		configured = opts.logLevel
	}
	level := logging.LevelFromVerbosity(opts.verbose, opts.quiet, logging.LevelFromString(configured))
	logger := logging.New(logging.Options{Output: stderr, Level: level, Format: cfg.Logging.Format})

	e, err := engine.New(opts.path, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("project", "root", e.Root())
	return e, logger, nil
}

// reportErrors prints recoverable errors and returns how many there were.
func reportErrors(w io.Writer, errs []error) int {
	for _, err := range errs {
		_, _ = fmt.Fprintf(w, "warning: %v\n", err)
	}
	return len(errs)
}
