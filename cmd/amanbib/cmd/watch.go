package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanbib/internal/config"
	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/output"
	"github.com/Aman-CERP/amanbib/internal/ui"
	"github.com/Aman-CERP/amanbib/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index in sync with the library file",
		Long: `Watch the library file and re-index entries whenever it is saved.

Saves are debounced (watch.debounce in the configuration) so an editor
writing the file in several steps triggers a single reload. Stop with
Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd)
		},
	}
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command) error {
	lib, cfg, err := loadLibrary()
	if err != nil {
		return err
	}

	renderer := ui.NewPlainRenderer(ui.NewConfig(cmd.OutOrStdout(), ui.WithLibrary(lib.Path())))
	_ = renderer.Start(ctx)
	defer func() { _ = renderer.Stop() }()

	m, err := openIndex(ctx, lib, cfg, ui.NewEventSink(renderer))
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	out := newOutput(cmd)
	w, err := newLibraryWatcher(lib, cfg, out)
	if err != nil {
		return err
	}

	out.Statusf("👀", "Watching %s (%d entries). Press Ctrl+C to stop.", w.Path(), lib.Len())
	if err := w.Run(ctx); err != nil {
		return err
	}
	out.Statusf("", "Stopped after %d reloads", w.Reloads())
	return nil
}

// newLibraryWatcher builds a watcher for lib that reports each reload on out.
func newLibraryWatcher(lib *model.Library, cfg *config.Config, out *output.Writer) (*watcher.LibraryWatcher, error) {
	return watcher.NewLibraryWatcher(lib, watcher.Options{
		DebounceWindow: cfg.DebounceDuration(),
		Logger:         slog.Default(),
		OnReload: func(entries int, err error) {
			if out == nil {
				return
			}
			if err != nil {
				out.Warningf("Reload failed: %v", err)
				return
			}
			out.Successf("Reloaded %d entries", entries)
		},
	})
}
