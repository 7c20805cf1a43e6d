// Package storage opens the relational store and the raw page archive named by configuration.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	gcsclient "cloud.google.com/go/storage"

	"github.com/JakeFAU/falchooser/internal/model"
	"github.com/JakeFAU/falchooser/internal/storage/gcs"
	"github.com/JakeFAU/falchooser/internal/storage/local"
	"github.com/JakeFAU/falchooser/internal/storage/memory"
	"github.com/JakeFAU/falchooser/internal/storage/postgres"
	"github.com/JakeFAU/falchooser/internal/storage/sqlite"
)

// Store persists the rows produced by a batch. Every Insert call is atomic.
type Store interface {
	EnsureSchema(ctx context.Context) error
	InsertAnime(ctx context.Context, rows []model.Anime) error
	InsertStatistics(ctx context.Context, rows []model.Statistics) error
	InsertTeams(ctx context.Context, teams []model.Team) error
	Close() error
}

// Archive keeps raw fetched pages.
type Archive interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// DBConfig selects the relational backend.
type DBConfig struct {
	// Engine is a postgres:// DSN, a sqlite:// path or ":memory:".
	Engine   string
	MaxConns int32
}

// Open connects the store named by cfg.Engine.
func Open(ctx context.Context, cfg DBConfig) (Store, error) {
	engine := strings.TrimSpace(cfg.Engine)
	switch {
	case engine == "":
		return nil, fmt.Errorf("db.engine is required")
	case strings.HasPrefix(engine, "postgres://"), strings.HasPrefix(engine, "postgresql://"):
		store, err := postgres.New(ctx, postgres.Config{DSN: engine, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case strings.HasPrefix(engine, sqlite.Scheme), engine == ":memory:":
		store, err := sqlite.New(engine)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported db.engine %q", engine)
	}
}

// ArchiveConfig selects where raw pages go. An empty Backend disables archiving.
type ArchiveConfig struct {
	Backend string
	Dir     string
	Bucket  string
	Prefix  string
}

// OpenArchive builds the archive named by cfg.Backend. The returned close function is never nil.
func OpenArchive(ctx context.Context, cfg ArchiveConfig) (Archive, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, noop, nil
	case "memory":
		return memory.NewBlobStore(), noop, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, noop, fmt.Errorf("open local archive: %w", err)
		}
		return store, noop, nil
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err == nil {
			err = store.CheckBucket(ctx)
		}
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("open gcs archive: %w", err)
		}
		return store, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported archive.backend %q", cfg.Backend)
	}
}
