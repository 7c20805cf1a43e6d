// Package batch runs the season workflows: resolve urls, insert anime and insert
// daily statistics snapshots.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/JakeFAU/falchooser/internal/mal"
	"github.com/JakeFAU/falchooser/internal/metrics"
	"github.com/JakeFAU/falchooser/internal/model"
	"github.com/JakeFAU/falchooser/internal/titles"
)

// Store persists batch rows. Each call is all-or-nothing.
type Store interface {
	InsertAnime(ctx context.Context, rows []model.Anime) error
	InsertStatistics(ctx context.Context, rows []model.Statistics) error
	InsertTeams(ctx context.Context, teams []model.Team) error
}

// Confirmer approves rows before they are written.
type Confirmer interface {
	Confirm(caption string, header table.Row, rows []table.Row) (bool, error)
}

// Clock stamps snapshots.
type Clock interface {
	Now() time.Time
}

// IDGenerator names batch runs in logs.
type IDGenerator interface {
	NewID() (string, error)
}

// Deps wires an Orchestrator.
type Deps struct {
	Client  *mal.Client
	Titles  *titles.Store
	Store   Store
	Confirm Confirmer
	Clock   Clock
	IDs     IDGenerator
	Logger  *zap.Logger
}

// Orchestrator runs one workflow per call.
type Orchestrator struct {
	client  *mal.Client
	titles  *titles.Store
	store   Store
	confirm Confirmer
	clock   Clock
	ids     IDGenerator
	logger  *zap.Logger
}

// Outcome labels for batch metrics.
const (
	outcomeCommitted = "committed"
	outcomeAborted   = "aborted"
	outcomeFailed    = "failed"
)

// ErrOutputExists is returned by WriteURLs when the url list is already present.
var ErrOutputExists = errors.New("url list already exists")

// New builds an Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Client == nil || deps.Titles == nil || deps.Clock == nil || deps.Confirm == nil {
		return nil, fmt.Errorf("client, titles, confirm and clock are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		client:  deps.Client,
		titles:  deps.Titles,
		store:   deps.Store,
		confirm: deps.Confirm,
		clock:   deps.Clock,
		ids:     deps.IDs,
		logger:  logger.Named("batch"),
	}, nil
}

func (o *Orchestrator) runLogger(operation string, season titles.Season, ignored bool) *zap.Logger {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.Stringer("season", season),
		zap.Bool("ignored", ignored),
	}
	if o.ids != nil {
		if id, err := o.ids.NewID(); err == nil {
			fields = append(fields, zap.String("run_id", id))
		}
	}
	return o.logger.With(fields...)
}

func (o *Orchestrator) finish(operation string, start time.Time, outcome *string) {
	metrics.ObserveBatch(operation, *outcome, time.Since(start))
}

// InsertStatistics snapshots every url of the season and inserts the rows. All rows are
// built before anything is written, so one bad page leaves the store untouched. It
// returns the number of inserted rows, zero when the operator declines.
func (o *Orchestrator) InsertStatistics(ctx context.Context, season titles.Season, ignored, assumeYes bool) (int, error) {
	const operation = "statistics"
	outcome := outcomeFailed
	defer o.finish(operation, time.Now(), &outcome)
	logger := o.runLogger(operation, season, ignored)

	if o.store == nil {
		return 0, fmt.Errorf("insert statistics: no store configured")
	}
	urls, err := o.titles.URLs(season, ignored)
	if err != nil {
		return 0, fmt.Errorf("insert statistics: %w", err)
	}

	rows := make([]model.Statistics, 0, len(urls))
	for _, u := range urls {
		entry, err := o.client.NewEntry(u)
		if err != nil {
			return 0, fmt.Errorf("insert statistics: %w", err)
		}
		s, err := entry.Stats(ctx)
		if err != nil {
			return 0, fmt.Errorf("insert statistics: %w", err)
		}
		row, err := model.NewStatistics(entry.ID, s, o.clock.Now())
		if err != nil {
			return 0, fmt.Errorf("insert statistics: %w", err)
		}
		logger.Debug("Snapshot built", zap.Int("anime", row.Anime), zap.Int("day", row.Day))
		rows = append(rows, row)
	}

	ok, err := o.approve(assumeYes, fmt.Sprintf("statistics %s", season), statisticsHeader(), statisticsRows(rows))
	if err != nil {
		return 0, fmt.Errorf("insert statistics: %w", err)
	}
	if !ok {
		outcome = outcomeAborted
		logger.Info("Insertion aborted by operator", zap.Int("rows", len(rows)))
		return 0, nil
	}
	if err := o.store.InsertStatistics(ctx, rows); err != nil {
		return 0, fmt.Errorf("insert statistics: %w", err)
	}
	outcome = outcomeCommitted
	logger.Info("Statistics inserted", zap.Int("rows", len(rows)))
	return len(rows), nil
}

// InsertAnime inserts the identity rows of every url of the season.
func (o *Orchestrator) InsertAnime(ctx context.Context, season titles.Season, ignored, assumeYes bool) (int, error) {
	const operation = "anime"
	outcome := outcomeFailed
	defer o.finish(operation, time.Now(), &outcome)
	logger := o.runLogger(operation, season, ignored)

	if o.store == nil {
		return 0, fmt.Errorf("insert anime: no store configured")
	}
	urls, err := o.titles.URLs(season, ignored)
	if err != nil {
		return 0, fmt.Errorf("insert anime: %w", err)
	}

	rows := make([]model.Anime, 0, len(urls))
	for _, u := range urls {
		entry, err := o.client.NewEntry(u)
		if err != nil {
			return 0, fmt.Errorf("insert anime: %w", err)
		}
		title, err := entry.Title(ctx)
		if err != nil {
			return 0, fmt.Errorf("insert anime: %w", err)
		}
		row, err := model.NewAnime(entry.ID, entry.URL, title)
		if err != nil {
			return 0, fmt.Errorf("insert anime: %w", err)
		}
		rows = append(rows, row)
	}

	tableRows := make([]table.Row, 0, len(rows))
	for _, a := range rows {
		tableRows = append(tableRows, table.Row{a.ID, a.Title, a.URL})
	}
	ok, err := o.approve(assumeYes, fmt.Sprintf("anime %s", season), table.Row{"id", "title", "url"}, tableRows)
	if err != nil {
		return 0, fmt.Errorf("insert anime: %w", err)
	}
	if !ok {
		outcome = outcomeAborted
		logger.Info("Insertion aborted by operator", zap.Int("rows", len(rows)))
		return 0, nil
	}
	if err := o.store.InsertAnime(ctx, rows); err != nil {
		return 0, fmt.Errorf("insert anime: %w", err)
	}
	outcome = outcomeCommitted
	logger.Info("Anime inserted", zap.Int("rows", len(rows)))
	return len(rows), nil
}

// WriteURLs resolves every title of the season and writes the url list. Titles without
// search results are logged and left out.
func (o *Orchestrator) WriteURLs(ctx context.Context, season titles.Season, ignored bool) (string, error) {
	const operation = "urls"
	outcome := outcomeFailed
	defer o.finish(operation, time.Now(), &outcome)
	logger := o.runLogger(operation, season, ignored)

	if o.titles.Exists(season, ignored, true) {
		return "", fmt.Errorf("write urls: %s: %w", o.titles.Path(season, ignored, true), ErrOutputExists)
	}
	names, err := o.titles.Titles(season, ignored)
	if err != nil {
		return "", fmt.Errorf("write urls: %w", err)
	}

	urls := make([]string, 0, len(names))
	for _, name := range names {
		u, err := o.client.ResolveURL(ctx, name)
		if err != nil {
			return "", fmt.Errorf("write urls: %w", err)
		}
		if u == "" {
			logger.Warn("No search result, title skipped", zap.String("title", name))
			continue
		}
		urls = append(urls, u)
	}

	path, err := o.titles.WriteURLs(season, ignored, urls)
	if err != nil {
		if titles.IsExist(err) {
			return "", fmt.Errorf("write urls: %w", ErrOutputExists)
		}
		return "", fmt.Errorf("write urls: %w", err)
	}
	outcome = outcomeCommitted
	logger.Info("Url list written", zap.String("path", path), zap.Int("urls", len(urls)), zap.Int("titles", len(names)))
	return path, nil
}

// InsertTeams stores the users and picks of a team list file.
func (o *Orchestrator) InsertTeams(ctx context.Context, path string) (int, error) {
	const operation = "teams"
	outcome := outcomeFailed
	defer o.finish(operation, time.Now(), &outcome)

	if o.store == nil {
		return 0, fmt.Errorf("insert teams: no store configured")
	}
	teams, err := titles.ReadTeams(path)
	if err != nil {
		return 0, fmt.Errorf("insert teams: %w", err)
	}
	if err := o.store.InsertTeams(ctx, teams); err != nil {
		return 0, fmt.Errorf("insert teams: %w", err)
	}
	outcome = outcomeCommitted
	o.logger.Info("Teams inserted", zap.String("path", path), zap.Int("users", len(teams)))
	return len(teams), nil
}

func (o *Orchestrator) approve(assumeYes bool, caption string, header table.Row, rows []table.Row) (bool, error) {
	if assumeYes {
		return true, nil
	}
	ok, err := o.confirm.Confirm(caption, header, rows)
	if err != nil {
		return false, fmt.Errorf("confirm rows: %w", err)
	}
	return ok, nil
}

func statisticsHeader() table.Row {
	header := table.Row{}
	for _, col := range model.StatisticsColumns() {
		header = append(header, col)
	}
	return header
}

func statisticsRows(rows []model.Statistics) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		row := table.Row{r.Anime, r.Day}
		for _, v := range r.Values() {
			row = append(row, cell(v))
		}
		out = append(out, append(row, r.Accessed.Format(time.RFC3339)))
	}
	return out
}

func cell(v any) string {
	switch p := v.(type) {
	case *float64:
		if p != nil {
			return strconv.FormatFloat(*p, 'f', -1, 64)
		}
	case *int64:
		if p != nil {
			return strconv.FormatInt(*p, 10)
		}
	}
	return "null"
}
