// Package postgres persists anime, statistics and teams in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/falchooser/internal/metrics"
	"github.com/JakeFAU/falchooser/internal/model"
)

// Schema creates the tables when missing. There are no migrations.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS anime (
	id INTEGER PRIMARY KEY,
	title VARCHAR(1024) NOT NULL,
	url VARCHAR(2048) NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS statistics (
	anime INTEGER NOT NULL REFERENCES anime (id),
	day INTEGER NOT NULL,
	score DOUBLE PRECISION,
	users BIGINT,
	ranked BIGINT,
	popularity BIGINT,
	members BIGINT,
	favorites BIGINT,
	watching BIGINT,
	completed BIGINT,
	onhold BIGINT,
	dropped BIGINT,
	plantowatch BIGINT,
	accessed TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (anime, day)
)`,
	`CREATE TABLE IF NOT EXISTS "user" (
	id SERIAL PRIMARY KEY,
	name VARCHAR(256) NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS user_anime_team (
	users INTEGER NOT NULL REFERENCES "user" (id),
	anime INTEGER NOT NULL REFERENCES anime (id),
	PRIMARY KEY (users, anime)
)`,
}

const (
	insertAnimeSQL = `INSERT INTO anime (id, title, url) VALUES ($1, $2, $3)`
	upsertUserSQL  = `INSERT INTO "user" (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`
	animeByTitleSQL = `SELECT id FROM anime WHERE title = $1 ORDER BY id LIMIT 1`
	insertTeamSQL   = `INSERT INTO user_anime_team (users, anime) VALUES ($1, $2) ON CONFLICT DO NOTHING`
)

var insertStatisticsSQL = buildInsertStatistics()

func buildInsertStatistics() string {
	cols := model.StatisticsColumns()
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO statistics (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store writes rows through a pgx pool. Each batch is one transaction.
type Store struct {
	pool pool
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.engine is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// InsertAnime inserts identity rows.
func (s *Store) InsertAnime(ctx context.Context, rows []model.Anime) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, a := range rows {
			if _, err := tx.Exec(ctx, insertAnimeSQL, a.ID, a.Title, a.URL); err != nil {
				return fmt.Errorf("insert anime %d: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.ObserveRows("anime", len(rows))
	return nil
}

// InsertStatistics inserts snapshot rows.
func (s *Store) InsertStatistics(ctx context.Context, rows []model.Statistics) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, row := range rows {
			if _, err := tx.Exec(ctx, insertStatisticsSQL, row.Args()...); err != nil {
				return fmt.Errorf("insert statistics for anime %d day %d: %w", row.Anime, row.Day, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.ObserveRows("statistics", len(rows))
	return nil
}

// InsertTeams stores users and links them to anime found by exact title.
func (s *Store) InsertTeams(ctx context.Context, teams []model.Team) error {
	links := 0
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, team := range teams {
			var userID int
			if err := tx.QueryRow(ctx, upsertUserSQL, team.User).Scan(&userID); err != nil {
				return fmt.Errorf("upsert user %q: %w", team.User, err)
			}
			for _, title := range team.Titles {
				var animeID int
				err := tx.QueryRow(ctx, animeByTitleSQL, title).Scan(&animeID)
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("team of %q: anime %q is not stored", team.User, title)
				}
				if err != nil {
					return fmt.Errorf("look up anime %q: %w", title, err)
				}
				if _, err := tx.Exec(ctx, insertTeamSQL, userID, animeID); err != nil {
					return fmt.Errorf("link %q to anime %d: %w", team.User, animeID, err)
				}
				links++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.ObserveRows("user", len(teams))
	metrics.ObserveRows("user_anime_team", links)
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
