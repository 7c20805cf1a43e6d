// Package model maps resolved entries and statistics to database rows.
package model

import (
	"fmt"
	"time"

	"github.com/JakeFAU/falchooser/internal/stats"
)

// Epoch is the first day of data collection. Day offsets count from here.
var Epoch = time.Date(2017, time.April, 2, 0, 0, 0, 0, time.UTC)

// Anime is the identity row of an anime.
type Anime struct {
	ID    int
	Title string
	URL   string
}

// Statistics is one daily snapshot row. Nil pointers are stored as NULL.
type Statistics struct {
	Anime       int
	Day         int
	Score       *float64
	Users       *int64
	Ranked      *int64
	Popularity  *int64
	Members     *int64
	Favorites   *int64
	Watching    *int64
	Completed   *int64
	OnHold      *int64
	Dropped     *int64
	PlanToWatch *int64
	Accessed    time.Time
}

// User is a league participant.
type User struct {
	ID   int
	Name string
}

// Team links a user to the titles they picked.
type Team struct {
	User   string
	Titles []string
}

// NewAnime builds an identity row. Every part must be present.
func NewAnime(id int, url, title string) (Anime, error) {
	var missing []string
	if id <= 0 {
		missing = append(missing, "id")
	}
	if url == "" {
		missing = append(missing, "url")
	}
	if title == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return Anime{}, &IncompleteEntryError{ID: id, URL: url, Missing: missing}
	}
	return Anime{ID: id, Title: title, URL: url}, nil
}

// NewStatistics builds a snapshot row. s must hold exactly the fixed field set.
func NewStatistics(animeID int, s stats.Stats, accessed time.Time) (Statistics, error) {
	if len(s) != len(stats.Fields) {
		return Statistics{}, &SchemaMismatchError{Anime: animeID, Got: len(s), Want: len(stats.Fields)}
	}
	for field := range s {
		if !field.Valid() {
			return Statistics{}, &SchemaMismatchError{Anime: animeID, Got: len(s), Want: len(stats.Fields), Unknown: string(field)}
		}
	}

	accessed = accessed.UTC()
	row := Statistics{
		Anime:    animeID,
		Day:      DayOffset(accessed),
		Accessed: accessed,
	}

	score := s[stats.FieldScore]
	if !score.IsNull() {
		f, ok := score.Float64()
		if !ok {
			return Statistics{}, fmt.Errorf("map score for anime %d: unexpected value %s", animeID, score)
		}
		row.Score = &f
	}

	ints := map[stats.Field]**int64{
		stats.FieldUsers:       &row.Users,
		stats.FieldRanked:      &row.Ranked,
		stats.FieldPopularity:  &row.Popularity,
		stats.FieldMembers:     &row.Members,
		stats.FieldFavorites:   &row.Favorites,
		stats.FieldWatching:    &row.Watching,
		stats.FieldCompleted:   &row.Completed,
		stats.FieldOnHold:      &row.OnHold,
		stats.FieldDropped:     &row.Dropped,
		stats.FieldPlanToWatch: &row.PlanToWatch,
	}
	for field, dst := range ints {
		v := s[field]
		if v.IsNull() {
			continue
		}
		n, ok := v.Int64()
		if !ok {
			return Statistics{}, fmt.Errorf("map %s for anime %d: unexpected value %s", field, animeID, v)
		}
		*dst = &n
	}
	return row, nil
}

// Values returns the statistics columns in stats.Fields order.
func (s Statistics) Values() []any {
	return []any{
		s.Score,
		s.Users,
		s.Ranked,
		s.Popularity,
		s.Members,
		s.Favorites,
		s.Watching,
		s.Completed,
		s.OnHold,
		s.Dropped,
		s.PlanToWatch,
	}
}

// StatisticsColumns lists the statistics table columns in the order Args returns them.
func StatisticsColumns() []string {
	cols := make([]string, 0, len(stats.Fields)+3)
	cols = append(cols, "anime", "day")
	for _, f := range stats.Fields {
		cols = append(cols, string(f))
	}
	return append(cols, "accessed")
}

// Args returns the row as insert arguments matching StatisticsColumns.
func (s Statistics) Args() []any {
	args := make([]any, 0, len(stats.Fields)+3)
	args = append(args, s.Anime, s.Day)
	args = append(args, s.Values()...)
	return append(args, s.Accessed)
}

// DayOffset returns the whole days between Epoch and the UTC date of t.
func DayOffset(t time.Time) int {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(midnight.Sub(Epoch) / (24 * time.Hour))
}
