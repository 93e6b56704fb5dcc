package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/earworm/internal/catalog"
	"github.com/roach88/earworm/internal/config"
	"github.com/roach88/earworm/internal/engine"
	"github.com/roach88/earworm/internal/reconcile"
	"github.com/roach88/earworm/internal/rules"
	"github.com/roach88/earworm/internal/snapshot"
	"github.com/roach88/earworm/internal/store"
)

// app holds what every database-backed command needs: configuration,
// the rule table, the catalog, the open store and the confirmer.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	rules     rules.Table
	catalog   *catalog.Catalog
	store     *store.Store
	confirmer reconcile.Confirmer
}

// openApp loads configuration and opens the database. Setup problems are
// command errors (exit 2). The caller must Close the app.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, path, exists, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Paths.Database = opts.Database
	}

	logger, err := newLogger(cfg.Logging, opts.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid logging config", err)
	}
	logger.Debug("config resolved", "path", path, "found", exists)

	tbl := rules.Default()
	if cfg.Paths.Rules != "" {
		tbl, err = rules.LoadFile(cfg.Paths.Rules)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load rules", err)
		}
	}

	cat := catalog.Default()
	if cfg.Paths.Catalog != "" {
		cat, err = catalog.Load(cfg.Paths.Catalog)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
		}
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
	}

	logger.Debug("opening database", "path", cfg.Paths.Database)
	st, err := store.Open(cfg.Paths.Database)
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			return nil, WrapExitError(ExitCommandError, "database is in use by another earworm process", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		rules:     tbl,
		catalog:   cat,
		store:     st,
		confirmer: newConfirmer(cfg.Sync),
	}, nil
}

// Close releases the database and its process lock.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// newEngine creates an engine over the app's store and restores its
// state. Corrupt persisted state is replaced by defaults and reported by
// the engine's own log. The outbox is not resumed; commands that mutate
// state call Resume themselves.
func (a *app) newEngine(ctx context.Context, notices io.Writer, opts ...engine.Option) (*engine.Engine, error) {
	base := []engine.Option{
		engine.WithPersister(a.store),
		engine.WithReconciler(reconcile.New(a.confirmer,
			reconcile.WithTimeout(a.cfg.Sync.Timeout()),
			reconcile.WithLogger(a.logger),
		)),
		engine.WithNotifier(noticePrinter(notices)),
		engine.WithLogger(a.logger),
	}

	eng, err := engine.New(a.rules, a.catalog, append(base, opts...)...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	if err := eng.Load(ctx); err != nil && !snapshot.IsCorrupt(err) {
		return nil, WrapExitError(ExitCommandError, "failed to load state", err)
	}
	return eng, nil
}

// resume re-dispatches the outbox left by an earlier run.
func (a *app) resume(ctx context.Context, eng *engine.Engine) error {
	n, err := eng.Resume(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resume pending confirmations", err)
	}
	if n > 0 {
		a.logger.Info("resumed pending confirmations", "count", n)
	}
	return nil
}

// newConfirmer selects the confirmation backend for the sync mode.
func newConfirmer(s config.Sync) reconcile.Confirmer {
	switch s.Mode {
	case config.SyncModeHTTP:
		return reconcile.NewHTTPConfirmer(s.Endpoint, s.Timeout())
	case config.SyncModeSimulated:
		seed := s.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		return reconcile.NewSimulatedConfirmer(s.Latency(), s.SuccessRate, seed)
	default:
		return reconcile.NopConfirmer{}
	}
}

// newLogger builds the slog handler described by the logging config.
// Verbose forces debug level.
func newLogger(l config.Logging, verbose bool, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

// noticePrinter writes rollback notices for the listener.
func noticePrinter(w io.Writer) engine.Notifier {
	return engine.NotifierFunc(func(n engine.Notice) {
		fmt.Fprintf(w, "! %s could not be confirmed (%s); %d points removed\n", n.Title, n.Reason, n.Points)
	})
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
