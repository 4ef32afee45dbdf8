// Package cmd provides the CLI commands for Alloy.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	alloyerr "github.com/alloysearch/alloy/internal/errors"
	"github.com/alloysearch/alloy/internal/logging"
	"github.com/alloysearch/alloy/internal/output"
	"github.com/alloysearch/alloy/pkg/version"
)

var (
	projectDir     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the alloy CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alloy",
		Short: "Hybrid retrieval over dense vectors and BM25 keywords",
		Long: `Alloy fuses dense vector similarity and BM25 keyword matching into one
ranked result list. Documents are added once and indexed in both backends;
queries run against both and the normalized scores are combined with
configurable weights.

Configuration is read from .alloy.yaml in the project directory, with
ALLOY_* environment variables taking precedence.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("alloy version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory holding .alloy.yaml and index data")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to file")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newCompareCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging enables debug file logging when --debug is set.
func setupLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = "debug"
	logCfg.FilePath = filepath.Join(os.TempDir(), "alloy", "alloy.log")
	logCfg.WriteToStderr = false

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.Info("debug logging enabled", slog.String("log_file", logCfg.FilePath))
	return nil
}

// teardownLogging flushes and closes the debug log.
func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command, rendering any failure to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		printError(err)
	}
	return err
}

// printError renders a failure with its suggestion and, for transient
// backend errors, a retry hint.
func printError(err error) {
	out := output.New(os.Stderr)
	out.Error(err.Error())

	var ae *alloyerr.AlloyError
	if errors.As(err, &ae) && ae.Suggestion != "" {
		out.Dim("  hint: " + ae.Suggestion)
	}
	if alloyerr.IsRetryable(err) {
		out.Dim(fmt.Sprintf("  %s is transient, retrying may succeed", alloyerr.CodeOf(err)))
	}
}
