package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/falchooser/internal/app"
	"github.com/JakeFAU/falchooser/internal/config"
	"github.com/JakeFAU/falchooser/internal/titles"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) InsertStatistics(ctx context.Context, season titles.Season, ignored, assumeYes bool) (int, error) {
	args := m.Called(ctx, season, ignored, assumeYes)
	return args.Int(0), args.Error(1)
}

func (m *mockRunner) InsertAnime(ctx context.Context, season titles.Season, ignored, assumeYes bool) (int, error) {
	args := m.Called(ctx, season, ignored, assumeYes)
	return args.Int(0), args.Error(1)
}

func (m *mockRunner) WriteURLs(ctx context.Context, season titles.Season, ignored bool) (string, error) {
	args := m.Called(ctx, season, ignored)
	return args.String(0), args.Error(1)
}

func (m *mockRunner) InsertTeams(ctx context.Context, path string) (int, error) {
	args := m.Called(ctx, path)
	return args.Int(0), args.Error(1)
}

type fakeApp struct {
	cfg       config.Config
	runner    *mockRunner
	storeErr  error
	schemaErr error
	closed    bool
}

func (f *fakeApp) Close() { f.closed = true }

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Config() config.Config { return f.cfg }

func (f *fakeApp) Batch() Runner { return f.runner }

func (f *fakeApp) RequireStore() error { return f.storeErr }

func (f *fakeApp) EnsureSchema(context.Context) error { return f.schemaErr }

// withFakeApp swaps the factory for the duration of the test.
func withFakeApp(t *testing.T, fake *fakeApp) *config.Config {
	t.Helper()
	var got config.Config
	original := newApp
	newApp = func(_ context.Context, cfg config.Config, _ app.IO) (App, error) {
		got = cfg
		return fake, nil
	}
	t.Cleanup(func() { newApp = original })
	t.Setenv("HOME", t.TempDir())
	return &got
}

func execute(args ...string) (string, error) {
	root, opts := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	opts.closeApp()
	return out.String(), err
}

var spring2017 = titles.Season{Year: 2017, Quarter: 2}

func TestRootInsertsActiveThenIgnored(t *testing.T) {
	runner := &mockRunner{}
	fake := &fakeApp{runner: runner}
	withFakeApp(t, fake)

	var order []bool
	runner.On("InsertStatistics", mock.Anything, spring2017, mock.AnythingOfType("bool"), true).
		Run(func(args mock.Arguments) { order = append(order, args.Bool(2)) }).
		Return(3, nil).Twice()

	out, err := execute("2017", "2", "-y")
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, order)
	assert.Contains(t, out, "Inserting statistics for 2017-2...")
	assert.Contains(t, out, "Inserting statistics for 2017-2-ignore...")
	assert.Contains(t, out, "Done.")
	assert.True(t, fake.closed)
	runner.AssertExpectations(t)
}

func TestRootStopsOnFirstFailure(t *testing.T) {
	runner := &mockRunner{}
	runner.On("InsertStatistics", mock.Anything, spring2017, false, false).Return(0, errors.New("boom")).Once()

	fake := &fakeApp{runner: runner}
	withFakeApp(t, fake)
	_, err := execute("2017", "2")
	require.ErrorContains(t, err, "boom")
	assert.True(t, fake.closed, "app must be closed after a failed run")
	runner.AssertExpectations(t)
}

func TestRootArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"quarter out of range", []string{"2017", "5"}, "quarter must be between 1 and 4"},
		{"quarter zero", []string{"2017", "0"}, "quarter must be between 1 and 4"},
		{"year not a number", []string{"next", "2"}, `invalid year "next"`},
		{"quarter not a number", []string{"2017", "spring"}, `invalid quarter "spring"`},
		{"missing quarter", []string{"2017"}, "accepts 2 arg(s)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &mockRunner{}
			withFakeApp(t, &fakeApp{runner: runner})

			_, err := execute(tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			runner.AssertNotCalled(t, "InsertStatistics")
		})
	}
}

func TestRootRequiresStore(t *testing.T) {
	runner := &mockRunner{}
	withFakeApp(t, &fakeApp{runner: runner, storeErr: errors.New("db.engine is required")})

	_, err := execute("2017", "2")
	require.ErrorContains(t, err, "db.engine is required")
	runner.AssertNotCalled(t, "InsertStatistics")
}

func TestAnimeCommand(t *testing.T) {
	runner := &mockRunner{}
	withFakeApp(t, &fakeApp{runner: runner})
	runner.On("InsertAnime", mock.Anything, spring2017, true, false).Return(12, nil).Once()

	out, err := execute("anime", "2017", "2", "--ignored")
	require.NoError(t, err)
	assert.Contains(t, out, "Inserting anime for 2017-2-ignore...")
	runner.AssertExpectations(t)
}

func TestURLsCommand(t *testing.T) {
	runner := &mockRunner{}
	cfg := config.Config{Credentials: config.CredentialsConfig{Username: "fal", Password: "secret"}}
	withFakeApp(t, &fakeApp{runner: runner, cfg: cfg})
	runner.On("WriteURLs", mock.Anything, spring2017, false).Return("titles/2017-2-urls.txt", nil).Once()

	out, err := execute("urls", "2017", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote titles/2017-2-urls.txt")
	runner.AssertExpectations(t)
}

func TestURLsCommandRequiresCredentials(t *testing.T) {
	runner := &mockRunner{}
	withFakeApp(t, &fakeApp{runner: runner})

	_, err := execute("urls", "2017", "2")
	require.ErrorContains(t, err, "credentials")
	runner.AssertNotCalled(t, "WriteURLs")
}

func TestTeamCommand(t *testing.T) {
	runner := &mockRunner{}
	withFakeApp(t, &fakeApp{runner: runner})
	runner.On("InsertTeams", mock.Anything, "teams.txt").Return(2, nil).Once()

	out, err := execute("team", "teams.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Inserted 2 teams.")
	runner.AssertExpectations(t)
}

func TestSchemaCommand(t *testing.T) {
	withFakeApp(t, &fakeApp{runner: &mockRunner{}})

	out, err := execute("schema")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date.")

	withFakeApp(t, &fakeApp{runner: &mockRunner{}, schemaErr: errors.New("no store")})
	_, err = execute("schema")
	assert.ErrorContains(t, err, "no store")
}

func TestMetricsAddrFlagOverridesConfig(t *testing.T) {
	runner := &mockRunner{}
	got := withFakeApp(t, &fakeApp{runner: runner})

	_, err := execute("schema", "--metrics-addr", "127.0.0.1:9100")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", got.Metrics.Addr)
}

func TestConfigFlagIsLoaded(t *testing.T) {
	got := withFakeApp(t, &fakeApp{runner: &mockRunner{}})

	path := filepath.Join(t.TempDir(), "falchooser.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db:\n  engine: sqlite:///tmp/fal.db\ntitles:\n  dir: lists\n"), 0o600))

	_, err := execute("schema", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/fal.db", got.DB.Engine)
	assert.Equal(t, "lists", got.Titles.Dir)

	_, err = execute("schema", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "load config")
}
