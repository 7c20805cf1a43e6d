package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/falchooser/internal/fetcher"
	"github.com/JakeFAU/falchooser/internal/mal"
	"github.com/JakeFAU/falchooser/internal/model"
	"github.com/JakeFAU/falchooser/internal/storage/sqlite"
	"github.com/JakeFAU/falchooser/internal/titles"
)

const base = "https://mal.test"

var (
	season  = titles.Season{Year: 2017, Quarter: 2}
	now     = model.Epoch.AddDate(0, 0, 30).Add(14 * time.Hour)
	kemono  = base + "/anime/33089/Kemono_Friends"
	creator = base + "/anime/34561/Re_Creators"
)

var fullValues = map[string]string{
	"Score:":         "7.86<sup>1</sup> (scored by 123,456 users)",
	"Ranked:":        "#842<sup>2</sup>",
	"Popularity:":    "#1203",
	"Members:":       "298,105",
	"Favorites:":     "2,741",
	"Watching:":      "12,345",
	"Completed:":     "201,011",
	"On-Hold:":       "8,765",
	"Dropped:":       "4,321",
	"Plan to Watch:": "71,663",
}

func statsPage(overrides map[string]string, drop ...string) string {
	values := make(map[string]string, len(fullValues))
	for k, v := range fullValues {
		values[k] = v
	}
	for k, v := range overrides {
		values[k] = v
	}
	for _, k := range drop {
		delete(values, k)
	}
	var b strings.Builder
	b.WriteString(`<html><body><div class="js-scrollfix-bottom">`)
	for label, value := range values {
		fmt.Fprintf(&b, `<div><span class="dark_text">%s</span> %s</div>`, label, value)
	}
	b.WriteString(`</div><div class="js-scrollfix-bottom-rel"></div></body></html>`)
	return b.String()
}

type stubFetcher struct {
	pages map[string]string
}

func (s *stubFetcher) Fetch(_ context.Context, request fetcher.Request) (fetcher.Response, error) {
	key := request.URL
	if q := request.Params.Get("q"); q != "" {
		key += "?q=" + q
	}
	body, ok := s.pages[key]
	if !ok {
		return fetcher.Response{}, &fetcher.TransportError{URL: key, Attempts: 4, StatusCode: http.StatusNotFound}
	}
	return fetcher.Response{URL: key, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type staticIDs struct{}

func (staticIDs) NewID() (string, error) { return "run-1", nil }

type mockStore struct {
	mock.Mock
}

func (m *mockStore) InsertAnime(ctx context.Context, rows []model.Anime) error {
	return m.Called(ctx, rows).Error(0)
}

func (m *mockStore) InsertStatistics(ctx context.Context, rows []model.Statistics) error {
	return m.Called(ctx, rows).Error(0)
}

func (m *mockStore) InsertTeams(ctx context.Context, teams []model.Team) error {
	return m.Called(ctx, teams).Error(0)
}

type recordingConfirmer struct {
	answer  bool
	caption string
	header  table.Row
	rows    []table.Row
}

func (r *recordingConfirmer) Confirm(caption string, header table.Row, rows []table.Row) (bool, error) {
	r.caption, r.header, r.rows = caption, header, rows
	return r.answer, nil
}

type fixture struct {
	dir   string
	pages map[string]string
	store Store
	conf  Confirmer
}

func newFixture(t *testing.T, store Store, pages map[string]string) *fixture {
	t.Helper()
	return &fixture{dir: t.TempDir(), pages: pages, store: store, conf: &recordingConfirmer{answer: true}}
}

func (f *fixture) writeList(t *testing.T, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o600))
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	client := mal.New(&stubFetcher{pages: f.pages}, mal.Config{BaseURL: base})
	o, err := New(Deps{
		Client:  client,
		Titles:  titles.NewStore(f.dir),
		Store:   f.store,
		Confirm: f.conf,
		Clock:   fixedClock{now: now},
		IDs:     staticIDs{},
	})
	require.NoError(t, err)
	return o
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{})
	assert.Error(t, err)

	f := newFixture(t, nil, nil)
	_, err = New(Deps{
		Client: mal.New(&stubFetcher{}, mal.Config{BaseURL: base}),
		Titles: titles.NewStore(f.dir),
		Clock:  fixedClock{now: now},
	})
	assert.ErrorContains(t, err, "confirm", "an orchestrator without a prompt must not be built")
}

func TestInsertStatisticsCommits(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	f := newFixture(t, store, map[string]string{
		kemono + "/stats":  statsPage(nil),
		creator + "/stats": statsPage(map[string]string{"Score:": "N/A"}),
	})
	f.writeList(t, "2017-2-urls.txt", kemono, "", creator)

	store.On("InsertStatistics", mock.Anything, mock.MatchedBy(func(rows []model.Statistics) bool {
		return len(rows) == 2 &&
			rows[0].Anime == 33089 && rows[0].Day == 30 && rows[0].Score != nil && *rows[0].Score == 7.86 &&
			rows[1].Anime == 34561 && rows[1].Score == nil && rows[1].Users == nil &&
			rows[1].Accessed.Equal(now)
	})).Return(nil).Once()

	n, err := f.orchestrator(t).InsertStatistics(context.Background(), season, false, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	store.AssertExpectations(t)
}

func TestInsertStatisticsSchemaMismatchSkipsStore(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	f := newFixture(t, store, map[string]string{
		kemono + "/stats":  statsPage(nil),
		creator + "/stats": statsPage(nil, "Dropped:"),
	})
	f.writeList(t, "2017-2-urls.txt", kemono, creator)

	_, err := f.orchestrator(t).InsertStatistics(context.Background(), season, false, true)
	var mismatch *model.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch), "expected SchemaMismatchError, got %v", err)
	assert.Equal(t, 34561, mismatch.Anime)
	assert.Equal(t, 10, mismatch.Got)
	store.AssertNotCalled(t, "InsertStatistics", mock.Anything, mock.Anything)
}

func TestInsertStatisticsTransportFailure(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	f := newFixture(t, store, map[string]string{kemono + "/stats": statsPage(nil)})
	f.writeList(t, "2017-2-ignore-urls.txt", kemono, creator)

	_, err := f.orchestrator(t).InsertStatistics(context.Background(), season, true, true)
	var transportErr *fetcher.TransportError
	require.ErrorAs(t, err, &transportErr)
	store.AssertNotCalled(t, "InsertStatistics", mock.Anything, mock.Anything)
}

func TestInsertStatisticsOperatorDeclines(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	f := newFixture(t, store, map[string]string{
		creator + "/stats": statsPage(map[string]string{"Score:": "N/A"}),
	})
	f.writeList(t, "2017-2-urls.txt", creator)
	confirmer := &recordingConfirmer{answer: false}
	f.conf = confirmer

	n, err := f.orchestrator(t).InsertStatistics(context.Background(), season, false, false)
	require.NoError(t, err)
	assert.Zero(t, n)
	store.AssertNotCalled(t, "InsertStatistics", mock.Anything, mock.Anything)

	assert.Equal(t, "statistics Spring 2017", confirmer.caption)
	require.Len(t, confirmer.header, len(model.StatisticsColumns()))
	require.Len(t, confirmer.rows, 1)
	row := confirmer.rows[0]
	assert.Equal(t, 34561, row[0])
	assert.Equal(t, 30, row[1])
	assert.Equal(t, "null", row[2], "N/A score is shown as null")
	assert.Equal(t, "null", row[3], "users count is null with the score")
	assert.Equal(t, "842", row[4])
}

func TestInsertStatisticsAtomicAgainstSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.InsertAnime(ctx, []model.Anime{
		{ID: 33089, Title: "Kemono Friends", URL: kemono},
		{ID: 34561, Title: "Re:Creators", URL: creator},
	}))

	f := newFixture(t, store, map[string]string{
		kemono + "/stats":  statsPage(nil),
		creator + "/stats": statsPage(nil, "Members:"),
	})
	f.writeList(t, "2017-2-urls.txt", kemono, creator)

	_, err = f.orchestrator(t).InsertStatistics(ctx, season, false, true)
	require.Error(t, err)
	n, err := store.Count(ctx, "statistics")
	require.NoError(t, err)
	assert.Zero(t, n, "no partial rows after an aborted batch")

	f.pages[creator+"/stats"] = statsPage(nil)
	inserted, err := f.orchestrator(t).InsertStatistics(ctx, season, false, true)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	n, err = store.Count(ctx, "statistics")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInsertAnime(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	f := newFixture(t, store, map[string]string{
		kemono:  `<h1 class="h1"><span itemprop="name">Kemono Friends</span></h1>`,
		creator: `<h1 class="title-name h1_bold_none"><strong>Re:Creators</strong></h1>`,
	})
	f.writeList(t, "2017-2-urls.txt", kemono, creator)
	confirmer := &recordingConfirmer{answer: true}
	f.conf = confirmer

	want := []model.Anime{
		{ID: 33089, Title: "Kemono Friends", URL: kemono},
		{ID: 34561, Title: "Re:Creators", URL: creator},
	}
	store.On("InsertAnime", mock.Anything, want).Return(nil).Once()

	n, err := f.orchestrator(t).InsertAnime(context.Background(), season, false, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, table.Row{"id", "title", "url"}, confirmer.header)
	store.AssertExpectations(t)
}

func TestInsertAnimeStoreError(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	f := newFixture(t, store, map[string]string{kemono: `<h1 class="h1"><span>Kemono Friends</span></h1>`})
	f.writeList(t, "2017-2-urls.txt", kemono)
	store.On("InsertAnime", mock.Anything, mock.Anything).Return(errors.New("duplicate key")).Once()

	_, err := f.orchestrator(t).InsertAnime(context.Background(), season, false, true)
	assert.ErrorContains(t, err, "duplicate key")
}

const searchCreators = `<anime><entry><id>36999</id><title>Re:Creators Specials</title></entry>` +
	`<entry><id>34561</id><title>Re:Creators</title></entry></anime>`

func TestWriteURLs(t *testing.T) {
	t.Parallel()

	search := base + "/api/anime/search.xml?q="
	f := newFixture(t, nil, map[string]string{
		search + "Re:Creators":  searchCreators,
		search + "Unknown Show": `<anime></anime>`,
		base + "/anime/34561":   `<a class="horiznav_active" href="` + creator + `">Details</a>`,
	})
	f.writeList(t, "2017-2.txt", "Re:Creators", "Unknown Show")

	o := f.orchestrator(t)
	path, err := o.WriteURLs(context.Background(), season, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "2017-2-urls.txt"), path)

	// #nosec G304 -- test reads from the controlled temp directory.
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, creator+"\n", string(written))

	_, err = o.WriteURLs(context.Background(), season, false)
	assert.ErrorIs(t, err, ErrOutputExists)
}

func TestInsertTeams(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	f := newFixture(t, store, nil)
	f.writeList(t, "teamlist-spring17.txt", "alice", "Re:Creators", "", "bob", "Kemono Friends")

	store.On("InsertTeams", mock.Anything, []model.Team{
		{User: "alice", Titles: []string{"Re:Creators"}},
		{User: "bob", Titles: []string{"Kemono Friends"}},
	}).Return(nil).Once()

	n, err := f.orchestrator(t).InsertTeams(context.Background(), filepath.Join(f.dir, "teamlist-spring17.txt"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	store.AssertExpectations(t)
}

func TestStoreRequired(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	o := f.orchestrator(t)
	_, err := o.InsertStatistics(context.Background(), season, false, true)
	assert.ErrorContains(t, err, "no store configured")
	_, err = o.InsertTeams(context.Background(), "teams.txt")
	assert.ErrorContains(t, err, "no store configured")
}
