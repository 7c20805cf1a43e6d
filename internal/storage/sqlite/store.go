// Package sqlite persists anime, statistics and teams in an SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/falchooser/internal/metrics"
	"github.com/JakeFAU/falchooser/internal/model"
)

// Scheme prefixes SQLite engine strings, as in sqlite:///var/lib/fal.db.
const Scheme = "sqlite://"

// Schema creates the tables when missing.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS anime (
	id INTEGER PRIMARY KEY,
	title VARCHAR(1024) NOT NULL,
	url VARCHAR(2048) NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS statistics (
	anime INTEGER NOT NULL REFERENCES anime (id),
	day INTEGER NOT NULL,
	score REAL,
	users INTEGER,
	ranked INTEGER,
	popularity INTEGER,
	members INTEGER,
	favorites INTEGER,
	watching INTEGER,
	completed INTEGER,
	onhold INTEGER,
	dropped INTEGER,
	plantowatch INTEGER,
	accessed DATETIME NOT NULL,
	PRIMARY KEY (anime, day)
)`,
	`CREATE TABLE IF NOT EXISTS "user" (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name VARCHAR(256) NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS user_anime_team (
	users INTEGER NOT NULL REFERENCES "user" (id),
	anime INTEGER NOT NULL REFERENCES anime (id),
	PRIMARY KEY (users, anime)
)`,
}

const (
	insertAnimeSQL = `INSERT INTO anime (id, title, url) VALUES (?, ?, ?)`
	upsertUserSQL  = `INSERT INTO "user" (name) VALUES (?)
ON CONFLICT (name) DO UPDATE SET name = excluded.name
RETURNING id`
	animeByTitleSQL = `SELECT id FROM anime WHERE title = ? ORDER BY id LIMIT 1`
	insertTeamSQL   = `INSERT OR IGNORE INTO user_anime_team (users, anime) VALUES (?, ?)`
)

var insertStatisticsSQL = fmt.Sprintf("INSERT INTO statistics (%s) VALUES (%s)",
	strings.Join(model.StatisticsColumns(), ", "),
	strings.TrimSuffix(strings.Repeat("?, ", len(model.StatisticsColumns())), ", "))

// Store writes rows through database/sql.
type Store struct {
	db *sql.DB
}

// DSN strips the sqlite:// prefix from an engine string.
func DSN(engine string) string {
	return strings.TrimPrefix(engine, Scheme)
}

// New opens the database named by engine ("sqlite://path" or ":memory:").
func New(engine string) (*Store, error) {
	dsn := DSN(engine)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store, err := NewWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an open handle. The pool is capped at one connection so that
// in-memory databases and the foreign key pragma survive across statements.
func NewWithDB(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// InsertAnime inserts identity rows in one transaction.
func (s *Store) InsertAnime(ctx context.Context, rows []model.Anime) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, a := range rows {
			if _, err := tx.ExecContext(ctx, insertAnimeSQL, a.ID, a.Title, a.URL); err != nil {
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

// InsertStatistics inserts snapshot rows in one transaction.
func (s *Store) InsertStatistics(ctx context.Context, rows []model.Statistics) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			if _, err := tx.ExecContext(ctx, insertStatisticsSQL, row.Args()...); err != nil {
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
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, team := range teams {
			var userID int
			if err := tx.QueryRowContext(ctx, upsertUserSQL, team.User).Scan(&userID); err != nil {
				return fmt.Errorf("upsert user %q: %w", team.User, err)
			}
			for _, title := range team.Titles {
				var animeID int
				err := tx.QueryRowContext(ctx, animeByTitleSQL, title).Scan(&animeID)
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("team of %q: anime %q is not stored", team.User, title)
				}
				if err != nil {
					return fmt.Errorf("look up anime %q: %w", title, err)
				}
				if _, err := tx.ExecContext(ctx, insertTeamSQL, userID, animeID); err != nil {
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

// Count returns the number of rows in table. Only schema tables are accepted.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case "anime", "statistics", `"user"`, "user_anime_team":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	// #nosec G202 -- table is restricted to the schema tables above.
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
