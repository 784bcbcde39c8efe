// Package cmd provides the CLI commands for amanbib.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
	"github.com/Aman-CERP/amanbib/internal/logging"
	"github.com/Aman-CERP/amanbib/internal/output"
	"github.com/Aman-CERP/amanbib/internal/ui"
	"github.com/Aman-CERP/amanbib/pkg/version"
)

// defaultLibrary is used when neither --library nor AMANBIB_LIBRARY is set.
const defaultLibrary = "library.yaml"

// Global flags
var (
	libraryPath    string
	configPath     string
	debugMode      bool
	noColor        bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for amanbib CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amanbib",
		Short: "Fulltext search for bibliography libraries",
		Long: `amanbib keeps a fulltext index of a bibliography library: every
field of every entry plus the text and annotations of linked PDFs.

The index follows the library file as it changes and can be queried
from the command line or by AI assistants over MCP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amanbib version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&libraryPath, "library", "l", envOr("AMANBIB_LIBRARY", defaultLibrary),
		"Library file (env AMANBIB_LIBRARY)")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Extra config file applied after user and project config")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.amanbib/logs/")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newFieldsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs the debug or quiet logger. serve replaces it with
// a file-only logger.
func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.QuietConfig()
	if debugMode {
		cfg = logging.DefaultConfig()
	}
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	if debugMode {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints any error with its hint.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, amerrors.FormatForCLI(err))
	}
	return err
}

// newOutput returns a writer that colors only interactive terminals.
func newOutput(cmd *cobra.Command) *output.Writer {
	w := cmd.OutOrStdout()
	return output.NewColored(w, !noColor && !ui.DetectNoColor() && ui.IsTTY(w))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
