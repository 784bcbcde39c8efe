package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanbib/internal/index"
	"github.com/Aman-CERP/amanbib/internal/logging"
	"github.com/Aman-CERP/amanbib/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol server so AI assistants can search
the library. The server speaks JSON-RPC on stdin/stdout and logs to
~/.amanbib/logs/ only.

Unless --no-watch is given the library file is watched and the index
follows every save.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not follow changes to the library file")
	return cmd
}

// runServe serves MCP on stdio. Nothing may be written to stdout before
// the transport takes it over.
func runServe(ctx context.Context, noWatch bool) error {
	lib, cfg, err := loadLibrary()
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	if cleanup, err := logging.SetupDefault(logging.ServeConfig(level)); err == nil {
		defer cleanup()
	}
	logger := slog.Default()

	// The server answers while the index catches up; index_status reports progress.
	m, err := index.NewManager(ctx, index.Options{Library: lib, Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	srv, err := mcp.NewServer(m, logger)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		// A client disconnect ends the session and stops the watcher too.
		defer cancel()
		return srv.Serve(ctx, cfg.Server.Transport)
	})
	if !noWatch {
		w, err := newLibraryWatcher(lib, cfg, nil)
		if err != nil {
			logger.Warn("library_watch_unavailable", slog.String("error", err.Error()))
		} else {
			g.Go(func() error {
				return w.Run(ctx)
			})
		}
	}
	return g.Wait()
}
