package cmd

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanbib/internal/config"
	"github.com/Aman-CERP/amanbib/internal/index"
	"github.com/Aman-CERP/amanbib/internal/schema"
	"github.com/Aman-CERP/amanbib/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and statistics",
		Long: `Show the state of the library's fulltext index: document counts,
storage used by the index and the PDF extraction cache, and any error
reported by the last indexing run.

Opening the index starts bringing it up to date; use --wait to report
only once that has finished.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput, wait)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the index is up to date")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput, wait bool) error {
	lib, cfg, err := loadLibrary()
	if err != nil {
		return err
	}

	m, err := index.NewManager(ctx, index.Options{Library: lib, Config: cfg})
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	if wait {
		if err := m.Wait(ctx); err != nil {
			return err
		}
	}

	info := collectStatus(m, cfg)
	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// collectStatus gathers the status of m and the on-disk sizes of its
// index and extraction cache.
func collectStatus(m *index.Manager, cfg *config.Config) ui.StatusInfo {
	st := m.Status()
	info := ui.StatusInfo{
		Library:       st.Library,
		IndexPath:     st.IndexPath,
		Status:        st.Status,
		Entries:       st.Entries,
		Documents:     st.Documents,
		Fields:        st.Fields,
		Schema:        schemaVersion(cfg),
		NeedsRebuild:  m.Store().NeedsRebuild() && st.ActiveTasks > 0,
		IndexPDFs:     cfg.Index.IndexPDFs,
		WatcherStatus: "n/a",
		Error:         st.ErrorMessage,
	}
	if st.LastRebuild != nil {
		info.LastIndexed = *st.LastRebuild
	}
	if st.IndexPath != "" {
		size, modified := dirSize(st.IndexPath)
		info.IndexSize = size
		if info.LastIndexed.IsZero() {
			info.LastIndexed = modified
		}
	}
	if path := cfg.CachePathFor(st.Library); path != "" {
		if fi, err := os.Stat(path); err == nil {
			info.CacheSize = fi.Size()
		}
	}
	return info
}

func schemaVersion(cfg *config.Config) string {
	if cfg.Index.SchemaVersion != "" {
		return cfg.Index.SchemaVersion
	}
	return schema.Version
}

// dirSize returns the total size of the files under root and the latest
// modification time among them.
func dirSize(root string) (int64, time.Time) {
	var (
		total  int64
		latest time.Time
	)
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += fi.Size()
		if fi.ModTime().After(latest) {
			latest = fi.ModTime()
		}
		return nil
	})
	return total, latest
}
