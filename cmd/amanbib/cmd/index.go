package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanbib/internal/index"
	"github.com/Aman-CERP/amanbib/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Bring the fulltext index up to date",
		Long: `Bring the fulltext index of the library up to date.

Entries added, changed or removed since the last run are re-indexed,
together with linked PDFs whose modification time changed. A new or
incompatible index is rebuilt from scratch.`,
		Example: `  amanbib index --library refs.yaml
  amanbib index --no-tui`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, noTUI, false)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	return cmd
}

func newRebuildCmd() *cobra.Command {
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Clear the index and re-index every entry",
		Long: `Clear the fulltext index and re-add every entry and linked file.

Use this after changing keyword fields or when results look stale.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, noTUI, true)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	return cmd
}

// runIndex opens the index, optionally forces a rebuild, and renders the
// progress of every task until the index is idle.
func runIndex(ctx context.Context, cmd *cobra.Command, noTUI, rebuild bool) error {
	lib, cfg, err := loadLibrary()
	if err != nil {
		return err
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(noColor),
		ui.WithLibrary(lib.Path()))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("progress_renderer_failed", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	sink := ui.NewEventSink(renderer)
	start := time.Now()

	m, err := index.NewManager(ctx, index.Options{
		Library: lib,
		Config:  cfg,
		Sink:    sink,
		Logger:  slog.Default(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	// A freshly created index is already being rebuilt.
	if rebuild && !m.Store().NeedsRebuild() {
		if err := m.Wait(ctx); err != nil {
			return err
		}
		if _, err := m.Rebuild(ctx); err != nil {
			return err
		}
	}

	waitErr := m.Wait(ctx)

	st := m.Status()
	stats := ui.CompletionStats{
		Library:   lib.Path(),
		Entries:   st.Entries,
		Documents: st.Documents,
		Fields:    st.Fields,
		Duration:  time.Since(start),
	}
	sink.Fill(&stats)
	if ctx.Err() != nil {
		stats.Canceled = true
	}
	renderer.Complete(stats)

	slog.Info("index_finished",
		slog.String("library", lib.Path()),
		slog.Uint64("documents", st.Documents),
		slog.Int("failed_tasks", st.FailedTasks),
		slog.Duration("duration", stats.Duration))

	switch {
	case waitErr != nil:
		return waitErr
	case st.FailedTasks > 0:
		return fmt.Errorf("%d indexing task(s) failed: %s", st.FailedTasks, st.ErrorMessage)
	}
	return nil
}
