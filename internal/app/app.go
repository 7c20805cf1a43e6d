// Package app builds the long-lived services a command needs and tears them down.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/falchooser/internal/batch"
	"github.com/JakeFAU/falchooser/internal/clock/system"
	"github.com/JakeFAU/falchooser/internal/config"
	"github.com/JakeFAU/falchooser/internal/confirm"
	"github.com/JakeFAU/falchooser/internal/fetcher"
	"github.com/JakeFAU/falchooser/internal/hash/sha256"
	"github.com/JakeFAU/falchooser/internal/id/uuid"
	"github.com/JakeFAU/falchooser/internal/logging"
	"github.com/JakeFAU/falchooser/internal/mal"
	"github.com/JakeFAU/falchooser/internal/metrics"
	"github.com/JakeFAU/falchooser/internal/server"
	"github.com/JakeFAU/falchooser/internal/storage"
	"github.com/JakeFAU/falchooser/internal/titles"
)

// archiveDigestLength shortens the url digest used in archive object names.
const archiveDigestLength = 12

// IO carries the terminal streams used by the confirmation prompt. Nil streams
// fall back to stdin and stdout.
type IO struct {
	In  io.Reader
	Out io.Writer
}

// App is the service container for a single command invocation.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        storage.Store
	closeArchive func() error
	server       *server.Server
	batch        *batch.Orchestrator
}

// New builds the App. The store is only opened when db.engine is set, so that
// commands which never write (urls) run without a database.
func New(ctx context.Context, cfg config.Config, streams IO) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	a := &App{
		cfg:          cfg,
		logger:       logger,
		closeArchive: func() error { return nil },
	}
	if err := a.build(ctx, streams); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, streams IO) error {
	cfg := a.cfg
	if streams.In == nil {
		streams.In = os.Stdin
	}
	if streams.Out == nil {
		streams.Out = os.Stdout
	}
	a.logger.Info("building application dependencies",
		zap.String("base_url", cfg.MAL.BaseURL),
		zap.String("archive", cfg.Archive.Backend),
		zap.Bool("store", cfg.DB.Engine != ""),
	)

	if cfg.Metrics.Addr != "" {
		a.server = server.New(cfg.Metrics.Addr, a.logger)
		if _, err := a.server.Start(); err != nil {
			a.server = nil
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	if cfg.DB.Engine != "" {
		store, err := storage.Open(ctx, storage.DBConfig{
			Engine:   cfg.DB.Engine,
			MaxConns: int32(cfg.DB.MaxConns), // #nosec G115 -- validated small positive value
		})
		if err != nil {
			return err
		}
		a.store = store
	}

	archive, closeArchive, err := storage.OpenArchive(ctx, storage.ArchiveConfig{
		Backend: cfg.Archive.Backend,
		Dir:     cfg.Archive.Dir,
		Bucket:  cfg.Archive.GCSBucket,
		Prefix:  cfg.Archive.Prefix,
	})
	if err != nil {
		return err
	}
	a.closeArchive = closeArchive

	f := fetcher.New(fetcher.Config{
		UserAgent:  cfg.HTTP.UserAgent,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.HTTP.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
	}, a.logger)

	clock := system.New()
	opts := []mal.Option{mal.WithClock(clock), mal.WithLogger(a.logger)}
	if archive != nil {
		opts = append(opts, mal.WithArchive(archive, sha256.NewTruncated(archiveDigestLength)))
	}
	client := mal.New(f, mal.Config{
		BaseURL: cfg.MAL.BaseURL,
		Credentials: fetcher.BasicAuth{
			Username: cfg.Credentials.Username,
			Password: cfg.Credentials.Password,
		},
	}, opts...)

	deps := batch.Deps{
		Client:  client,
		Titles:  titles.NewStore(cfg.Titles.Dir),
		Confirm: confirm.New(streams.In, streams.Out),
		Clock:   clock,
		IDs:     uuid.NewGenerator(),
		Logger:  a.logger,
	}
	if a.store != nil {
		deps.Store = a.store
	}
	orchestrator, err := batch.New(deps)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	a.batch = orchestrator

	if a.server != nil {
		a.server.SetReady(true)
	}
	a.logger.Info("application services initialized")
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Batch returns the workflow runner.
func (a *App) Batch() *batch.Orchestrator {
	return a.batch
}

// RequireStore reports a missing db.engine.
func (a *App) RequireStore() error {
	if a.store == nil {
		return a.cfg.RequireDB()
	}
	return nil
}

// EnsureSchema creates missing tables in the configured store.
func (a *App) EnsureSchema(ctx context.Context) error {
	if err := a.RequireStore(); err != nil {
		return err
	}
	if err := a.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases every service. It is safe to call on a partially built App.
func (a *App) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}
	if err := a.closeArchive(); err != nil {
		a.logger.Warn("archive close failed", zap.Error(err))
	}
	// stderr sync returns EINVAL on some platforms; nothing useful to do with it.
	_ = a.logger.Sync()
}
