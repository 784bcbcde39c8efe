package cmd

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/amanbib/internal/async"
	"github.com/Aman-CERP/amanbib/internal/config"
	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
	"github.com/Aman-CERP/amanbib/internal/index"
	"github.com/Aman-CERP/amanbib/internal/model"
)

// loadLibrary reads the library selected by --library together with the
// configuration that applies to it.
func loadLibrary() (*model.Library, *config.Config, error) {
	abs, err := filepath.Abs(libraryPath)
	if err != nil {
		return nil, nil, amerrors.ValidationError("invalid library path", err)
	}

	lib, err := model.LoadLibrary(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, amerrors.New(amerrors.ErrCodeFileNotFound, "library not found: "+abs, err).
				WithSuggestion("Pass --library or set AMANBIB_LIBRARY.")
		}
		return nil, nil, amerrors.New(amerrors.ErrCodeFileCorrupt, "cannot read library: "+err.Error(), err)
	}

	cfg, err := config.Load(filepath.Dir(abs), configPath)
	if err != nil {
		return nil, nil, amerrors.ConfigError(err.Error(), err).
			WithSuggestion("Run 'amanbib config show' to inspect the merged configuration.")
	}
	return lib, cfg, nil
}

// openIndex opens the library's index and waits until it is up to date.
func openIndex(ctx context.Context, lib *model.Library, cfg *config.Config, sink async.Sink) (*index.Manager, error) {
	m, err := index.NewManager(ctx, index.Options{
		Library: lib,
		Config:  cfg,
		Sink:    sink,
		Logger:  slog.Default(),
	})
	if err != nil {
		return nil, err
	}
	if err := m.Wait(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}
